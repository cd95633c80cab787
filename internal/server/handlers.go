package server

import (
	"encoding/json"

	"github.com/muurk/accelsock/internal/gateway"
	"github.com/muurk/accelsock/internal/logging"
	"github.com/muurk/accelsock/internal/telemetry"
	"go.uber.org/zap"
)

func (s *Server) registerHandlers() {
	s.gateway.OnConnect(s.handleConnect)
	s.gateway.OnDisconnect(s.handleDisconnect)
	s.gateway.On(telemetry.EventAccelData, s.handleAccelData)
}

func (s *Server) handleConnect(sess *gateway.Session) {
	logging.Info("Client connected",
		zap.String("session_id", sess.ID),
		zap.String("remote_addr", sess.RemoteAddr),
	)
}

func (s *Server) handleDisconnect(sess *gateway.Session) {
	logging.Info("Client disconnected",
		zap.String("session_id", sess.ID),
		zap.Duration("duration", sess.Duration()),
		zap.Uint64("events", sess.Events()),
	)
}

// handleAccelData logs the reading and replies with nothing. Fields that are
// missing or not numeric are logged as 0.00.
func (s *Server) handleAccelData(sess *gateway.Session, data json.RawMessage) {
	reading, issues := telemetry.Decode(data)

	for _, issue := range issues {
		logging.Debug("Telemetry field defaulted to zero",
			zap.String("session_id", sess.ID),
			zap.String("field", issue.Field),
			zap.String("reason", issue.Reason),
		)
	}

	fields := append([]zap.Field{zap.String("session_id", sess.ID)}, reading.Fields()...)
	logging.Info("Accelerometer data", fields...)
}
