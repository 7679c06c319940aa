// Пакет kv — встроенное упорядоченное KV-хранилище метаданных
// с независимыми пространствами имён (media, user, invite).
//
// Атомарна только UpdateAndFetch, и только в пределах одного
// пространства и одного ключа. Операций над несколькими
// пространствами в одной транзакции нет.
package kv

import (
	"context"
	"errors"
)

// Пространства имён.
const (
	NamespaceMedia  = "media"
	NamespaceUser   = "user"
	NamespaceInvite = "invite"
)

// Namespaces — все пространства имён хранилища.
var Namespaces = []string{NamespaceMedia, NamespaceUser, NamespaceInvite}

var (
	// ErrNotFound — ключ отсутствует в пространстве.
	ErrNotFound = errors.New("ключ не найден")
	// ErrUnknownNamespace — запрошено неизвестное пространство имён.
	ErrUnknownNamespace = errors.New("неизвестное пространство имён")
)

// Entry — пара ключ/значение, возвращаемая Scan.
type Entry struct {
	Key   string
	Value []byte
}

// UpdateFunc получает текущее значение (nil, если ключа нет)
// и возвращает новое. Возврат nil удаляет ключ. Ошибка отменяет изменение.
// Функция не должна обращаться к хранилищу.
type UpdateFunc func(old []byte) ([]byte, error)

// Namespace — одно пространство имён.
type Namespace interface {
	// Name возвращает имя пространства.
	Name() string
	// Get возвращает значение или ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)
	// Insert записывает значение (перезаписывая существующее, позиция ключа сохраняется).
	Insert(ctx context.Context, key string, value []byte) error
	// UpdateAndFetch атомарно применяет fn и возвращает новое значение.
	UpdateAndFetch(ctx context.Context, key string, fn UpdateFunc) ([]byte, error)
	// Remove удаляет ключ. Отсутствующий ключ не считается ошибкой.
	Remove(ctx context.Context, key string) error
	// Scan возвращает все пары в порядке первой вставки ключа.
	Scan(ctx context.Context) ([]Entry, error)
	// Flush — барьер долговечности.
	Flush(ctx context.Context) error
}

// Store — хранилище с набором пространств имён.
type Store interface {
	// Namespace возвращает пространство или ErrUnknownNamespace.
	Namespace(name string) (Namespace, error)
	// Ping проверяет доступность хранилища.
	Ping(ctx context.Context) error
	// Close освобождает ресурсы.
	Close() error
}

func knownNamespace(name string) bool {
	for _, ns := range Namespaces {
		if ns == name {
			return true
		}
	}
	return false
}
