package bulk

import (
	"errors"
	"strings"
	"time"
)

// Operation is the domain entity corresponding to the `bulk_operations` table.
type Operation struct {
	ID        string
	BatchID   string
	TripID    string
	StudentID string
	ActorID   string
	Action    Action
	Status    Status
	Error     *string
	Timestamp time.Time
}

// Intent is one caller-supplied item of a bulk submission.
type Intent struct {
	StudentID string
	Action    Action
}

var (
	ErrEmptyBatch          = errors.New("bulk submission has no operations")
	ErrBatchNotFound       = errors.New("bulk batch not found")
	ErrBatchIDRequired     = errors.New("batch id is required")
	ErrStudentIDRequired   = errors.New("student id is required")
	ErrOperationFinalized  = errors.New("bulk operation already finished")
	ErrInvalidOpTransition = errors.New("invalid bulk operation transition")
)

// NewOperation creates a pending operation for one intent.
func NewOperation(id, batchID, tripID, actorID string, intent Intent) (*Operation, error) {
	if batchID = strings.TrimSpace(batchID); batchID == "" {
		return nil, ErrBatchIDRequired
	}
	studentID := strings.TrimSpace(intent.StudentID)
	if studentID == "" {
		return nil, ErrStudentIDRequired
	}
	if !intent.Action.Valid() {
		return nil, ErrInvalidAction
	}

	return &Operation{
		ID:        id,
		BatchID:   batchID,
		TripID:    strings.TrimSpace(tripID),
		StudentID: studentID,
		ActorID:   strings.TrimSpace(actorID),
		Action:    intent.Action,
		Status:    StatusPending,
		Timestamp: time.Now().UTC(),
	}, nil
}

// Begin moves PENDING -> PROCESSING.
func (op *Operation) Begin() error {
	if op.Status.Terminal() {
		return ErrOperationFinalized
	}
	if op.Status != StatusPending {
		return ErrInvalidOpTransition
	}
	op.setStatus(StatusProcessing)
	return nil
}

// Complete moves PROCESSING -> COMPLETED.
func (op *Operation) Complete() error {
	if op.Status.Terminal() {
		return ErrOperationFinalized
	}
	if op.Status != StatusProcessing {
		return ErrInvalidOpTransition
	}
	op.setStatus(StatusCompleted)
	return nil
}

// Fail moves a non-terminal operation to FAILED and captures cause.
func (op *Operation) Fail(cause error) error {
	if op.Status.Terminal() {
		return ErrOperationFinalized
	}
	msg := "unknown error"
	if cause != nil {
		msg = strings.TrimSpace(cause.Error())
	}
	op.Error = &msg
	op.setStatus(StatusFailed)
	return nil
}

// NoteError appends cause to the operation's error text without changing its status.
func (op *Operation) NoteError(cause error) {
	if cause == nil {
		return
	}
	msg := strings.TrimSpace(cause.Error())
	if op.Error != nil && *op.Error != "" {
		msg = *op.Error + "; " + msg
	}
	op.Error = &msg
}

func (op *Operation) setStatus(status Status) {
	op.Status = status
	op.Timestamp = time.Now().UTC()
}

// Dedupe keeps the first intent for each student and reports how many were dropped.
func Dedupe(intents []Intent) ([]Intent, int) {
	seen := make(map[string]struct{}, len(intents))
	out := make([]Intent, 0, len(intents))
	dropped := 0
	for _, in := range intents {
		key := strings.TrimSpace(in.StudentID)
		if _, ok := seen[key]; ok {
			dropped++
			continue
		}
		seen[key] = struct{}{}
		in.StudentID = key
		out = append(out, in)
	}
	return out, dropped
}
