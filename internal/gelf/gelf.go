package gelf

import (
	"encoding/json"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/sirupsen/logrus"
)

// Hook sends GELF messages over UDP for every logrus entry.
type Hook struct {
	conn     net.Conn
	hostname string
	service  string
	levels   []logrus.Level
}

// New creates a GELF UDP hook connected to addr (e.g. "172.17.0.1:12201").
func New(addr, service string) (*Hook, error) {
	conn, err := net.Dial("udp", addr)
	if err != nil {
		return nil, err
	}

	hostname, _ := os.Hostname()
	if hostname == "" {
		hostname = "kapa-server"
	}

	return &Hook{conn: conn, hostname: hostname, service: service, levels: logrus.AllLevels}, nil
}

func (h *Hook) Levels() []logrus.Level { return h.levels }

// Fire sends one GELF message. Send errors are swallowed so logging never
// fails the caller.
func (h *Hook) Fire(e *logrus.Entry) error {
	msg := map[string]any{
		"version":       "1.1",
		"host":          h.hostname,
		"short_message": e.Message,
		"timestamp":     float64(e.Time.UnixNano()) / 1e9,
		"level":         syslogLevel(e.Level),
		"_service":      h.service,
	}
	for k, v := range e.Data {
		if k == "id" {
			k = "field_id"
		}
		switch val := v.(type) {
		case error:
			msg["_"+k] = val.Error()
		case string, bool, int, int64, float64, time.Duration:
			msg["_"+k] = val
		default:
			msg["_"+k] = fmt.Sprint(val)
		}
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return nil
	}

	// Fire-and-forget
	h.conn.Write(payload)
	return nil
}

func (h *Hook) Close() error { return h.conn.Close() }

func syslogLevel(l logrus.Level) int {
	switch l {
	case logrus.PanicLevel:
		return 0
	case logrus.FatalLevel:
		return 2
	case logrus.ErrorLevel:
		return 3
	case logrus.WarnLevel:
		return 4
	case logrus.InfoLevel:
		return 6
	default:
		return 7
	}
}
