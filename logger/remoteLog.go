package logger

import (
	"log/slog"
	"sync"
)

var (
	remoteMu      sync.RWMutex
	sendRemoteLog func(args *RemoteLogArgs) error
	nodeId        int
)

// client

// SetSendRemoteLog routes every subsequent log row through sendLog, tagged with
// the rank of the calling node. A nil sendLog restores local logging.
func SetSendRemoteLog(sendLog func(args *RemoteLogArgs) error, _nodeId int) {
	remoteMu.Lock()
	defer remoteMu.Unlock()

	sendRemoteLog = sendLog
	nodeId = _nodeId
}

func logRemotely(level LoggingLevel, message string) bool {
	remoteMu.RLock()
	send, id := sendRemoteLog, nodeId
	remoteMu.RUnlock()

	if send == nil {
		return false
	}

	err := send(&RemoteLogArgs{
		Rank:    id,
		Level:   level,
		Message: message,
	})

	// the launcher is gone, keep the row locally
	if err != nil {
		writeRow(level, message, slog.Int("rank", id))
	}

	return true
}

// server

type LoggerServer int

type RemoteLogArgs struct {
	Rank    int
	Level   LoggingLevel
	Message string
}

func (r *LoggerServer) Log(args RemoteLogArgs, reply *int) error {
	if args.Level <= MaxLogLevel() {
		writeRow(args.Level, args.Message, slog.Int("rank", args.Rank))
	}

	return nil
}
