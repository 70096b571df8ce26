package runner

import "github.com/marksmithsgit/lumen-engine/internal/market"

// CommandKind discriminates the introspection/control command envelope.
type CommandKind int

const (
	CmdGetSnapshot CommandKind = iota
	CmdGetPriceHistory
	CmdPause
	CmdResume
	CmdStop
)

// Command is sent to a running SymbolRunner's command inbox. Exactly one
// of the typed reply channels is populated, matching Kind.
type Command struct {
	Kind CommandKind

	// HistoryCount is the number of recent bars GetPriceHistory wants;
	// nil means "all available".
	HistoryCount *int

	SnapshotReply chan Snapshot
	HistoryReply  chan []market.Bar
	BoolReply     chan bool
}

func GetSnapshotCommand() (Command, chan Snapshot) {
	ch := make(chan Snapshot, 1)
	return Command{Kind: CmdGetSnapshot, SnapshotReply: ch}, ch
}

func GetPriceHistoryCommand(count *int) (Command, chan []market.Bar) {
	ch := make(chan []market.Bar, 1)
	return Command{Kind: CmdGetPriceHistory, HistoryCount: count, HistoryReply: ch}, ch
}

func PauseCommand() (Command, chan bool) {
	ch := make(chan bool, 1)
	return Command{Kind: CmdPause, BoolReply: ch}, ch
}

func ResumeCommand() (Command, chan bool) {
	ch := make(chan bool, 1)
	return Command{Kind: CmdResume, BoolReply: ch}, ch
}

func StopCommand() (Command, chan bool) {
	ch := make(chan bool, 1)
	return Command{Kind: CmdStop, BoolReply: ch}, ch
}
