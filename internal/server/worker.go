package server

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

// Request outcomes reported to the Recorder.
const (
	OutcomeOK          = "ok"
	OutcomeDropped     = "dropped"
	OutcomeBadRequest  = "bad_request"
	OutcomeVersion     = "version_not_supported"
	OutcomeUnsupported = "unsupported_protocol"
	OutcomeError       = "error"
)

// weirdVersion is the body text of every 505 answer.
const weirdVersion = "Weird HTTP version"

func (m *Master) worker(ctx context.Context, id int) {
	defer m.workerWG.Done()

	logger := m.logger.With(zap.Int("worker", id))
	buf := make([]byte, m.bufSize)

	for !m.stopping.Load() {
		s, ok := m.GetSocket(ctx)
		if !ok {
			return
		}
		m.serve(ctx, logger, s, buf)
	}
}

func (m *Master) serve(ctx context.Context, logger *zap.Logger, s *Socket, buf []byte) {
	m.recorder.WorkersBusy(int(m.busy.Add(1)))
	defer func() {
		m.recorder.WorkersBusy(int(m.busy.Add(-1)))
	}()

	birth := time.Now()
	logger = logger.With(
		zap.String("conn_id", s.ID),
		zap.String("protocol", s.Proto.String()),
		zap.String("remote", s.conn.RemoteAddr().String()))

	outcome := m.process(ctx, logger, s, buf)
	if err := s.Close(); err != nil {
		logger.Debug("Failed to close connection", zap.Error(err))
	}

	m.recorder.RequestHandled(s.Proto.String(), outcome, time.Since(birth))
	logger.Debug("Connection done",
		zap.String("outcome", outcome),
		zap.Duration("elapsed", time.Since(birth)))
}

// process serves the single request of s. The connection is closed by the
// caller.
func (m *Master) process(ctx context.Context, logger *zap.Logger, s *Socket, buf []byte) string {
	newProto, ok := m.factory[s.Proto]
	if !ok {
		logger.Warn("No handler for protocol")
		return OutcomeUnsupported
	}
	p := newProto()
	defer p.Release()
	p.Reset()

	if d := time.Duration(m.readTimeout.Load()); d > 0 {
		_ = s.conn.SetDeadline(time.Now().Add(d))
	}

	nread, reqLen := readRequest(s.conn, buf)
	if reqLen <= 0 {
		logger.Debug("Request dropped",
			zap.Int("read", nread),
			zap.Int("request_len", reqLen))
		return OutcomeDropped
	}

	if err := p.Parse(buf[:reqLen]); err != nil {
		var verr *VersionError
		if errors.As(err, &verr) {
			m.sendError(logger, s, 505, verr.Reason, weirdVersion)
			return OutcomeVersion
		}
		logger.Debug("Failed to parse request", zap.Error(err))
		m.sendError(logger, s, 400, "Bad Request", "Can not parse request: "+string(buf[:nread]))
		return OutcomeBadRequest
	}

	bodyLen := max(p.ContentLength(), 0)
	if reqLen+bodyLen > nread {
		nread = readBody(s.conn, buf, nread, reqLen+bodyLen)
	}
	bodyLen = min(bodyLen, nread-reqLen)
	p.SetBody(buf[reqLen : reqLen+bodyLen])

	// the request runs to completion even if the master stops meanwhile
	if err := p.Handle(context.WithoutCancel(ctx), s.conn); err != nil {
		if errors.Is(err, ErrBadRequest) {
			m.sendError(logger, s, 400, "Bad Request", err.Error())
			return OutcomeBadRequest
		}
		logger.Warn("Request abandoned", zap.Error(err))
		return OutcomeError
	}

	if rest := ShiftToNext(buf, nread, reqLen, bodyLen); rest > 0 {
		logger.Debug("Discarding pipelined bytes", zap.Int("bytes", rest))
	}
	return OutcomeOK
}

func (m *Master) sendError(logger *zap.Logger, s *Socket, code int, reason, message string) {
	if err := SendError(s.conn, code, reason, message, m.errBufSize); err != nil {
		logger.Debug("Failed to send error response",
			zap.Int("status", code),
			zap.Error(err))
	}
}
