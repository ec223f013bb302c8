package domain

// Command represents an enum of Command.
type Command uint

const (
	CommandUnknown Command = iota
	CommandExit
	CommandMessage
	CommandFileStart
	CommandFileEnd
	CommandChecksum
	CommandVersionCheck
	CommandVersionInfo
	CommandUpgradeRequest
	CommandHeartbeat
	CommandListFiles
	CommandChunk
)

// Value returns the value of the enum.
func (c Command) Value() any {
	if c >= Command(len(CommandValues)) {
		return nil
	}
	return CommandValues[c]
}

func (c Command) String() string {
	if v, ok := c.Value().(string); ok {
		return v
	}
	return "invalid"
}

var CommandValues = []any{"unknown", "exit", "MSG", "FILE_START", "FILE_END", "CHECKSUM", "VERSION_CHECK", "VERSION_INFO", "UPGRADE_REQUEST", "HEARTBEAT", "LIST_FILES", "chunk"}
var ValuesToCommand = map[any]Command{
	CommandValues[CommandUnknown]:        CommandUnknown,
	CommandValues[CommandExit]:           CommandExit,
	CommandValues[CommandMessage]:        CommandMessage,
	CommandValues[CommandFileStart]:      CommandFileStart,
	CommandValues[CommandFileEnd]:        CommandFileEnd,
	CommandValues[CommandChecksum]:       CommandChecksum,
	CommandValues[CommandVersionCheck]:   CommandVersionCheck,
	CommandValues[CommandVersionInfo]:    CommandVersionInfo,
	CommandValues[CommandUpgradeRequest]: CommandUpgradeRequest,
	CommandValues[CommandHeartbeat]:      CommandHeartbeat,
	CommandValues[CommandListFiles]:      CommandListFiles,
	CommandValues[CommandChunk]:          CommandChunk,
}

// prefixed reports whether the command carries an argument after a colon.
func (c Command) prefixed() bool {
	switch c {
	case CommandMessage, CommandFileStart, CommandChecksum, CommandUpgradeRequest, CommandVersionInfo:
		return true
	}
	return false
}
