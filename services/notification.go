package services

import (
	"context"
	"errors"

	"homewatch/models"
	"homewatch/notify"
)

// notifyListing alerts owner about l. It never fails the run: delivery
// errors end up on the listing and in the audit trail, and audit write
// errors are only logged. Placeholder owners are skipped and l stays
// pending.
func (e *Engine) notifyListing(ctx context.Context, owner *models.User, l *models.Listing) {
	if owner == nil || e.placeholders.IsPlaceholder(owner.Email) {
		e.logger.Info("[engine] No deliverable address for %s, alert skipped", l.URL)
		return
	}

	attempt := &models.NotificationAttempt{
		UserID:    owner.ID,
		ListingID: l.ID,
		Status:    models.NotificationSent,
	}
	err := e.notifier.Send(ctx, owner.Email, l)
	if errors.Is(err, notify.ErrPlaceholderAddress) {
		e.logger.Info("[engine] Notifier refused placeholder address for %s", l.URL)
		return
	}
	if err != nil {
		e.logger.Warn("[engine] Alert for %s to %s failed: %v", l.URL, owner.Email, err)
		attempt.Status = models.NotificationFailed
		attempt.ErrorMessage = err.Error()
	} else {
		e.logger.Info("[engine] Alert sent to %s for %s", owner.Email, l.URL)
	}

	if err := e.store.UpdateListingNotification(ctx, l.ID, true, attempt.Status); err != nil {
		e.logger.Error("[engine] Could not record alert status for %s: %v", l.URL, err)
	} else {
		l.IsNotified = true
		l.NotificationStatus = attempt.Status
	}

	if err := e.store.CreateNotificationAttempt(ctx, attempt); err != nil {
		e.logger.Warn("[engine] Could not write notification audit entry for %s: %v", l.URL, err)
	}
}
