// Пакет wal — журнал намерений для двухпространственных операций
// Media Module (запись media + индекс загрузок владельца в user).
// Каждая транзакция — отдельный файл {tx_id}.wal.json в MM_WAL_DIR.
// Незавершённые (pending) записи разбираются сверкой при старте.
package wal

import (
	"time"
)

// OperationType — тип операции, записываемой в журнал.
type OperationType string

const (
	// OpMediaCreate — загрузка: запись в media + добавление id в индекс владельца
	OpMediaCreate OperationType = "media_create"
	// OpMediaDelete — удаление: удаление из media + исключение id из индекса владельца
	OpMediaDelete OperationType = "media_delete"
)

// TransactionStatus — статус транзакции.
type TransactionStatus string

const (
	// StatusPending — операция в процессе или прервана
	StatusPending TransactionStatus = "pending"
	// StatusCommitted — обе записи выполнены
	StatusCommitted TransactionStatus = "committed"
	// StatusRolledBack — операция отменена до первой записи в хранилище
	StatusRolledBack TransactionStatus = "rolled_back"
)

// Intent — что операция собирается изменить.
type Intent struct {
	// MediaID — идентификатор записи
	MediaID string `json:"media_id"`
	// Owner — username владельца
	Owner string `json:"owner"`
	// BlobPath — путь к блобу (для media_create)
	BlobPath string `json:"blob_path,omitempty"`
}

// Entry — запись журнала.
type Entry struct {
	TransactionID string            `json:"transaction_id"`
	Operation     OperationType     `json:"operation"`
	Status        TransactionStatus `json:"status"`
	Intent
	StartedAt time.Time `json:"started_at"`
	// CompletedAt — nil для pending
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

func walFileName(txID string) string {
	return txID + ".wal.json"
}
