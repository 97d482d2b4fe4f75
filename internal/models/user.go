package models

// User представляет зарегистрированного пользователя системы.
type User struct {
	UUID         string // Уникальный идентификатор пользователя
	Email        string // Электронная почта
	Username     string // Имя пользователя (уникальное)
	PasswordHash string // Хэш пароля пользователя
	Role         string // Роль пользователя, admin или user
}

// DummyRegisterUser используется для приёма данных регистрации из JSON-запроса.
type DummyRegisterUser struct {
	Email    string `json:"email" validate:"required,email"`
	Username string `json:"username" validate:"required,alphanum"`
	Password string `json:"password" validate:"required,min=8"`
}

// DummyLoginUser используется для приёма данных входа из JSON-запроса.
type DummyLoginUser struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}
