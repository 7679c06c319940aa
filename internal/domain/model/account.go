package model

import "time"

// Account — проекция аккаунта, хранимая в пространстве user.
// Учётные данные принадлежат внешней подсистеме аутентификации.
type Account struct {
	// Username — ключ аккаунта (sub из JWT)
	Username string `json:"username"`

	// Uploads — идентификаторы записей владельца в порядке загрузки
	Uploads []string `json:"uploads"`

	// CreatedAt — время регистрации (UTC)
	CreatedAt time.Time `json:"created_at"`
}

// HasUpload проверяет, содержит ли индекс загрузок идентификатор.
func (a *Account) HasUpload(id string) bool {
	for _, u := range a.Uploads {
		if u == id {
			return true
		}
	}
	return false
}

// AppendUpload добавляет id в индекс, если его там нет. Возвращает true при изменении.
func (a *Account) AppendUpload(id string) bool {
	if a.HasUpload(id) {
		return false
	}
	a.Uploads = append(a.Uploads, id)
	return true
}

// DetachUpload удаляет id из индекса. Возвращает true при изменении.
func (a *Account) DetachUpload(id string) bool {
	for i, u := range a.Uploads {
		if u == id {
			a.Uploads = append(a.Uploads[:i], a.Uploads[i+1:]...)
			return true
		}
	}
	return false
}
