// Пакет mode — режим работы Media Module.
//
//   - rw — полный набор операций над медиа
//   - ro — только чтение (скачивание, поиск, info)
//
// Переход rw → ro свободный, обратный ro → rw требует confirm: true.
// Потокобезопасен через sync.RWMutex.
package mode

import (
	"fmt"
	"sync"
	"time"
)

// Mode — режим работы модуля.
type Mode string

const (
	// ModeRW — чтение и запись
	ModeRW Mode = "rw"
	// ModeRO — только чтение
	ModeRO Mode = "ro"
)

// Operation — операция над медиа.
type Operation string

const (
	OpUpload   Operation = "upload"
	OpDownload Operation = "download"
	OpEdit     Operation = "edit"
	OpDelete   Operation = "delete"
	OpList     Operation = "list"
)

// TransitionRecord — запись о смене режима.
type TransitionRecord struct {
	From      Mode      `json:"from"`
	To        Mode      `json:"to"`
	Subject   string    `json:"subject"`
	Timestamp time.Time `json:"timestamp"`
}

// StateMachine — конечный автомат режимов.
type StateMachine struct {
	mu      sync.RWMutex
	current Mode
	history []TransitionRecord
}

var validTransitions = map[Mode]map[Mode]bool{
	ModeRW: {ModeRO: true},
	ModeRO: {ModeRW: true},
}

var allowedOperations = map[Mode]map[Operation]bool{
	ModeRW: {OpUpload: true, OpDownload: true, OpEdit: true, OpDelete: true, OpList: true},
	ModeRO: {OpDownload: true, OpList: true},
}

var needsConfirmation = map[Mode]map[Mode]bool{
	ModeRO: {ModeRW: true},
}

// NewStateMachine создаёт автомат с начальным режимом.
func NewStateMachine(initial Mode) (*StateMachine, error) {
	if !isValidMode(initial) {
		return nil, fmt.Errorf("недопустимый начальный режим: %q", initial)
	}
	return &StateMachine{current: initial}, nil
}

// CurrentMode возвращает текущий режим.
func (sm *StateMachine) CurrentMode() Mode {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.current
}

// TransitionTo переключает режим.
//
// Ошибки:
//   - INVALID_TRANSITION — неизвестный режим или переход в текущий
//   - CONFIRMATION_REQUIRED — ro → rw без confirm
func (sm *StateMachine) TransitionTo(target Mode, confirm bool, subject string) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if !isValidMode(target) {
		return &TransitionError{
			Code:    "INVALID_TRANSITION",
			Message: fmt.Sprintf("недопустимый целевой режим: %q", target),
		}
	}

	if !validTransitions[sm.current][target] {
		return &TransitionError{
			Code:    "INVALID_TRANSITION",
			Message: fmt.Sprintf("переход %s → %s недопустим", sm.current, target),
		}
	}

	if needsConfirmation[sm.current][target] && !confirm {
		return &TransitionError{
			Code: "CONFIRMATION_REQUIRED",
			Message: fmt.Sprintf("обратный переход %s → %s требует подтверждения (confirm: true)",
				sm.current, target),
		}
	}

	sm.history = append(sm.history, TransitionRecord{
		From:      sm.current,
		To:        target,
		Subject:   subject,
		Timestamp: time.Now().UTC(),
	})
	sm.current = target

	return nil
}

// AllowedOperations возвращает операции текущего режима в стабильном порядке.
func (sm *StateMachine) AllowedOperations() []Operation {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	var result []Operation
	for _, op := range []Operation{OpUpload, OpDownload, OpEdit, OpDelete, OpList} {
		if allowedOperations[sm.current][op] {
			result = append(result, op)
		}
	}
	return result
}

// CanPerform проверяет, допустима ли операция в текущем режиме.
func (sm *StateMachine) CanPerform(op Operation) bool {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return allowedOperations[sm.current][op]
}

// History возвращает копию истории переходов.
func (sm *StateMachine) History() []TransitionRecord {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	result := make([]TransitionRecord, len(sm.history))
	copy(result, sm.history)
	return result
}

// TransitionError — ошибка смены режима.
type TransitionError struct {
	Code    string
	Message string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func isValidMode(m Mode) bool {
	return m == ModeRW || m == ModeRO
}

// ParseMode преобразует строку в Mode.
func ParseMode(s string) (Mode, error) {
	m := Mode(s)
	if !isValidMode(m) {
		return "", fmt.Errorf("недопустимый режим: %q, допустимые: rw, ro", s)
	}
	return m, nil
}
