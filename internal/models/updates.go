package models

// IncomingMessage - входящее текстовое сообщение из личного чата
type IncomingMessage struct {
	ChatID    int64
	Text      string
	Username  string
	FirstName string
	LastName  string
}

// CallbackQuery - нажатие инлайн-кнопки
type CallbackQuery struct {
	ID        string // ID callback запроса, нужен для ответа с алертом
	ChatID    int64
	MessageID int // сообщение, в котором была нажата кнопка
	Data      string
}
