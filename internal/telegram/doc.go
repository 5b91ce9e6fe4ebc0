// Package telegram provides Telegram Bot API integration for broadcasting
// procurement notice notifications.
//
// Messages are sent with HTML parse mode to chats selected by the caller.
// Authentication requires a bot token (from @BotFather).
package telegram
