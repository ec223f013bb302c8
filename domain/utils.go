package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

const (
	ServerPrefix = "SERVER:"
	ErrorPrefix  = "ERROR:"
	FilesPrefix  = "FILES:"
)

var ErrInvalidVersionInfo = errors.New("invalid version info")

// ParseRequest classifies a decoded payload. Prefixed commands take precedence over
// file chunks, so a MSG: line is still a message while a transfer is open.
func ParseRequest(payload string, inTransfer bool) Request {
	req := Request{Raw: payload}
	if strings.EqualFold(payload, CommandExit.String()) {
		req.Command = CommandExit
		return req
	}
	for c := CommandUnknown; c < Command(len(CommandValues)); c++ {
		if !c.prefixed() {
			continue
		}
		prefix := c.String() + ":"
		if strings.HasPrefix(payload, prefix) {
			req.Command = c
			req.Argument = payload[len(prefix):]
			return req
		}
	}
	switch payload {
	case CommandFileEnd.String():
		req.Command = CommandFileEnd
	case CommandVersionCheck.String():
		req.Command = CommandVersionCheck
	case CommandHeartbeat.String():
		req.Command = CommandHeartbeat
	case CommandListFiles.String():
		req.Command = CommandListFiles
	default:
		if inTransfer {
			req.Command = CommandChunk
			req.Argument = payload
		} else {
			req.Command = CommandUnknown
		}
	}
	return req
}

// Format renders a command and its argument as a payload.
func Format(c Command, argument string) string {
	if c.prefixed() {
		return c.String() + ":" + argument
	}
	if c == CommandChunk {
		return argument
	}
	return c.String()
}

func ServerReply(text string) string {
	return ServerPrefix + text
}

func ErrorReply(text string) string {
	return ErrorPrefix + text
}

// VersionInfo renders VERSION_INFO:<version>:<flag>.
func VersionInfo(version string, upgrade bool) string {
	return Format(CommandVersionInfo, version+":"+strconv.FormatBool(upgrade))
}

// ParseVersionInfo is the inverse of VersionInfo.
func ParseVersionInfo(payload string) (string, bool, error) {
	req := ParseRequest(payload, false)
	if req.Command != CommandVersionInfo {
		return "", false, fmt.Errorf("%w: %q", ErrInvalidVersionInfo, payload)
	}
	idx := strings.LastIndex(req.Argument, ":")
	if idx <= 0 {
		return "", false, fmt.Errorf("%w: %q", ErrInvalidVersionInfo, payload)
	}
	flag, err := strconv.ParseBool(req.Argument[idx+1:])
	if err != nil {
		return "", false, fmt.Errorf("%w: %q", ErrInvalidVersionInfo, payload)
	}
	return req.Argument[:idx], flag, nil
}

// FilesReply renders the record list sent in response to LIST_FILES.
func FilesReply(records []FileRecord) (string, error) {
	if records == nil {
		records = []FileRecord{}
	}
	data, err := json.Marshal(records)
	if err != nil {
		return "", fmt.Errorf("marshal file records: %w", err)
	}
	return FilesPrefix + string(data), nil
}

func ParseFilesReply(payload string) ([]FileRecord, error) {
	if !strings.HasPrefix(payload, FilesPrefix) {
		return nil, fmt.Errorf("unexpected reply %q", payload)
	}
	var records []FileRecord
	if err := json.Unmarshal([]byte(payload[len(FilesPrefix):]), &records); err != nil {
		return nil, fmt.Errorf("unmarshal file records: %w", err)
	}
	return records, nil
}
