package service

import (
	"context"
	"errors"

	"school-bus/internal/domain/passenger"
	"school-bus/internal/domain/roster"
	"school-bus/internal/domain/scan"
	"school-bus/internal/domain/trip"
	"school-bus/internal/general/contracts"
	"school-bus/internal/ports"
)

// IngestScan applies one badge read: parse, replay window, roster lookup, then the status the
// trip's mode implies (pickup boards, dropoff drops) with method qr.
//
// A suppressed repeat returns a nil error. Unknown codes return scan.ErrUnknownCode and write nothing.
func (service *tripService) IngestScan(ctx context.Context, in ports.ScanInput) (ports.ScanOutcome, error) {
	ctx = service.logger.WithTripID(ctx, in.TripID)

	outcome, err := service.ingestScan(ctx, in)

	service.metrics.ScanObserved(string(outcome.Kind))
	if outcome.Kind != ports.ScanSuppressed {
		service.broadcast(in.TripID, contracts.WSScanFeedback{
			Type:        contracts.WSTypeScanFeedback,
			TripID:      in.TripID,
			Kind:        string(outcome.Kind),
			Feedback:    string(outcome.Feedback),
			StudentID:   outcome.StudentID,
			StudentName: outcome.StudentName,
			Envelope:    service.envelope(""),
		})
	}
	return outcome, err
}

func (service *tripService) ingestScan(ctx context.Context, in ports.ScanInput) (ports.ScanOutcome, error) {
	studentID, err := scan.ParsePayload(in.Raw)
	if err != nil {
		return unknownCode(""), err
	}

	allowed, err := service.replay.Allow(ctx, in.TripID+":"+studentID)
	if err != nil {
		// fail open: a broken guard must not block boarding
		service.logger.Error(ctx, "scan_replay_check_failed", "Replay guard unavailable, accepting scan", err, map[string]any{
			"student_id": studentID,
		})
	} else if !allowed {
		service.logger.Debug(ctx, "scan_suppressed", "Repeated scan inside replay window", map[string]any{
			"student_id": studentID,
		})
		return ports.ScanOutcome{Kind: ports.ScanSuppressed, Feedback: ports.FeedbackNone, StudentID: studentID}, nil
	}

	var (
		t       *trip.Trip
		student roster.Student
	)
	err = service.uow.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		t, err = service.trips.GetByID(ctx, in.Actor.SchoolID, in.TripID)
		if err != nil {
			return err
		}
		if !t.HasStudent(studentID) {
			return scan.ErrUnknownCode
		}
		students, err := service.roster.ListByIDs(ctx, t.SchoolID, []string{studentID})
		if err != nil {
			return err
		}
		if len(students) == 0 {
			return scan.ErrUnknownCode
		}
		student = students[0]
		return nil
	})
	if errors.Is(err, scan.ErrUnknownCode) {
		service.logger.Info(ctx, "scan_unknown_code", "Scanned code is not on the roster", map[string]any{
			"code": studentID,
		})
		return unknownCode(studentID), err
	}
	if err != nil {
		return failedScan(studentID, err), err
	}

	target := passenger.StatusBoarded
	if t.Mode == trip.ModeDropoff {
		target = passenger.StatusDropped
	}

	res, err := service.SetPassengerStatus(ctx, ports.SetPassengerStatusInput{
		Actor:     in.Actor,
		TripID:    t.ID,
		StudentID: student.ID,
		Status:    target,
		Method:    passenger.MethodQR,
		Location:  in.Location,
	})
	if err != nil {
		out := failedScan(student.ID, err)
		out.StudentName = student.Name
		return out, err
	}

	return ports.ScanOutcome{
		Kind:        ports.ScanApplied,
		Feedback:    ports.FeedbackSuccess,
		StudentID:   student.ID,
		StudentName: student.Name,
		Status:      res.Status,
	}, nil
}

func unknownCode(code string) ports.ScanOutcome {
	return ports.ScanOutcome{
		Kind:      ports.ScanUnknownCode,
		Feedback:  ports.FeedbackError,
		StudentID: code,
		Message:   scan.ErrUnknownCode.Error(),
	}
}

func failedScan(studentID string, err error) ports.ScanOutcome {
	return ports.ScanOutcome{
		Kind:      ports.ScanFailed,
		Feedback:  ports.FeedbackError,
		StudentID: studentID,
		Message:   err.Error(),
	}
}
