package reporting

import (
	"context"
	"log/slog"
)

// LogSender is the default ReportSender: it records that a report would be
// sent without assembling or delivering the actual DMARC/TLS aggregate
// payload. The wire format and outbound transport for aggregate reports
// lives in the mail server's SMTP/JMAP machinery - a production deployment
// supplies its own ReportSender wired in place of this one.
type LogSender struct {
	logger *slog.Logger
}

func NewLogSender(logger *slog.Logger) *LogSender {
	return &LogSender{logger: logger}
}

func (s *LogSender) SendDmarcAggregateReport(ctx context.Context, e ReportEvent) error {
	s.logger.Info("REPORT_DMARC_SENT", "domain", e.Domain, "policy_hash", e.PolicyHash, "seq_id", e.SeqID)
	return nil
}

func (s *LogSender) SendTlsAggregateReport(ctx context.Context, group []ReportEvent) error {
	if len(group) == 0 {
		return nil
	}
	s.logger.Info("REPORT_TLS_SENT", "domain", group[0].Domain, "count", len(group))
	return nil
}
