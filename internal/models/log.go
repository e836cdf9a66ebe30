package models

import (
	"time"
)

// LogLevel follows the numeric scale used by test reporting agents, so
// floors can be compared with a single >= check.
type LogLevel int

const (
	LogLevelTrace   LogLevel = 5000
	LogLevelDebug   LogLevel = 10000
	LogLevelInfo    LogLevel = 20000
	LogLevelWarning LogLevel = 30000
	LogLevelError   LogLevel = 40000
	LogLevelFatal   LogLevel = 50000
)

func (l LogLevel) String() string {
	switch {
	case l >= LogLevelFatal:
		return "FATAL"
	case l >= LogLevelError:
		return "ERROR"
	case l >= LogLevelWarning:
		return "WARN"
	case l >= LogLevelInfo:
		return "INFO"
	case l >= LogLevelDebug:
		return "DEBUG"
	default:
		return "TRACE"
	}
}

type Log struct {
	ID        int64     `json:"id" gorm:"primaryKey"`
	ItemID    *int64    `json:"itemId" gorm:"index"`
	LaunchID  int64     `json:"launchId" gorm:"not null;index"`
	Level     LogLevel  `json:"level" gorm:"not null;index"`
	Message   string    `json:"message" gorm:"type:text"`
	ClusterID *int64    `json:"clusterId" gorm:"index"`
	Time      time.Time `json:"time"`
	CreatedAt time.Time `json:"createdAt"`
}

func (Log) TableName() string {
	return "logs"
}
