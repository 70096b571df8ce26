package fsm

// Context is a typed key-value store carried by the FSM across ticks,
// partitioned by value kind so lookups never need a type assertion on a
// bag of interface{}. Keys are unique within a kind; order is irrelevant.
type Context struct {
	strings  map[string]string
	numbers  map[string]float64
	integers map[string]int64
	booleans map[string]bool
}

// NewContext returns an empty context.
func NewContext() *Context {
	return &Context{
		strings:  make(map[string]string),
		numbers:  make(map[string]float64),
		integers: make(map[string]int64),
		booleans: make(map[string]bool),
	}
}

func (c *Context) SetString(key, value string)   { c.strings[key] = value }
func (c *Context) SetNumber(key string, value float64) { c.numbers[key] = value }
func (c *Context) SetInteger(key string, value int64)  { c.integers[key] = value }
func (c *Context) SetBool(key string, value bool)      { c.booleans[key] = value }

func (c *Context) String(key string) (string, bool)   { v, ok := c.strings[key]; return v, ok }
func (c *Context) Number(key string) (float64, bool)   { v, ok := c.numbers[key]; return v, ok }
func (c *Context) Integer(key string) (int64, bool)    { v, ok := c.integers[key]; return v, ok }
func (c *Context) Bool(key string) (bool, bool)        { v, ok := c.booleans[key]; return v, ok }

func (c *Context) RemoveString(key string)  { delete(c.strings, key) }
func (c *Context) RemoveNumber(key string)  { delete(c.numbers, key) }
func (c *Context) RemoveInteger(key string) { delete(c.integers, key) }
func (c *Context) RemoveBool(key string)    { delete(c.booleans, key) }

// SetLatestPrice and SetLatestTimestamp are the two fields the runner
// itself writes on every tick, regardless of what the strategy does.
func (c *Context) SetLatestPrice(px float64)      { c.SetNumber("latest_price", px) }
func (c *Context) SetLatestTimestamp(ts int64)    { c.SetInteger("latest_timestamp", ts) }
func (c *Context) LatestPrice() (float64, bool)   { return c.Number("latest_price") }
func (c *Context) LatestTimestamp() (int64, bool) { return c.Integer("latest_timestamp") }

// IterStrings, IterNumbers, IterIntegers, IterBooleans call fn for every
// entry of that kind. Iteration order is unspecified.
func (c *Context) IterStrings(fn func(key, value string))   { for k, v := range c.strings { fn(k, v) } }
func (c *Context) IterNumbers(fn func(key string, value float64)) { for k, v := range c.numbers { fn(k, v) } }
func (c *Context) IterIntegers(fn func(key string, value int64))  { for k, v := range c.integers { fn(k, v) } }
func (c *Context) IterBooleans(fn func(key string, value bool))   { for k, v := range c.booleans { fn(k, v) } }

// IsEmpty reports whether every kind's map is empty.
func (c *Context) IsEmpty() bool {
	return len(c.strings) == 0 && len(c.numbers) == 0 && len(c.integers) == 0 && len(c.booleans) == 0
}

// Clear empties every kind's map in place.
func (c *Context) Clear() {
	c.strings = make(map[string]string)
	c.numbers = make(map[string]float64)
	c.integers = make(map[string]int64)
	c.booleans = make(map[string]bool)
}

// Snapshot is a JSON-friendly copy of the context, used by RunnerSnapshot.
type Snapshot struct {
	Strings  map[string]string  `json:"strings"`
	Numbers  map[string]float64 `json:"numbers"`
	Integers map[string]int64   `json:"integers"`
	Booleans map[string]bool    `json:"booleans"`
}

// Snapshot copies the context into its JSON-friendly form.
func (c *Context) Snapshot() Snapshot {
	s := Snapshot{
		Strings:  make(map[string]string, len(c.strings)),
		Numbers:  make(map[string]float64, len(c.numbers)),
		Integers: make(map[string]int64, len(c.integers)),
		Booleans: make(map[string]bool, len(c.booleans)),
	}
	for k, v := range c.strings {
		s.Strings[k] = v
	}
	for k, v := range c.numbers {
		s.Numbers[k] = v
	}
	for k, v := range c.integers {
		s.Integers[k] = v
	}
	for k, v := range c.booleans {
		s.Booleans[k] = v
	}
	return s
}
