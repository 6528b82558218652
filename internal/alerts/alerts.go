package alerts

import (
	"fmt"
	"runtime/debug"

	"github.com/bloomfund/relayer/internal/models"
	"github.com/bloomfund/relayer/pkg/logger"
)

// Alerter fans run reports out to the configured operator channels.
// With no channel configured it degrades to logging only.
type Alerter struct {
	logger *logger.Logger

	TelegramAlerter *TelegramAlerter
}

func NewAlerter(logger *logger.Logger, telegramAlerter *TelegramAlerter) *Alerter {
	return &Alerter{logger: logger, TelegramAlerter: telegramAlerter}
}

// safeCall runs a function with panic recovery (synchronous, no goroutine spawning)
func (a *Alerter) safeCall(fn func(), context string) {
	defer func() {
		if r := recover(); r != nil {
			a.logger.Error("Function panicked",
				"context", context,
				"panic", r,
				"stack", string(debug.Stack()))
		}
	}()
	fn()
}

// RunCompleted delivers the outcome of one relayer run to the operator.
// Alert delivery failures never affect the run itself.
func (a *Alerter) RunCompleted(report *models.RunReport) {
	message := formatReport(report)
	a.logger.Info("Run completed ", "run ", report.ID, " state ", report.State)

	if a.TelegramAlerter != nil {
		a.safeCall(func() { a.TelegramAlerter.SendAlert(message) }, "telegramAlert")
	}
}

func formatReport(report *models.RunReport) string {
	switch report.State {
	case models.RunConfirmed:
		return fmt.Sprintf("BloomFund relayer: batch confirmed, tx %s, %d/%d users charged, %s wei total",
			report.TxHash, report.Accepted, report.Candidates, report.TotalWei)
	case models.RunEmptyDone:
		return fmt.Sprintf("BloomFund relayer: no eligible candidates (%d checked)", report.Candidates)
	default:
		return fmt.Sprintf("BloomFund relayer: run %s ended in %s: %s", report.ID, report.State, report.Error)
	}
}
