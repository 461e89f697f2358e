// Package models holds the GORM entities of the social graph, posts and
// direct messages.
package models

// All returns every model in migration order
func All() []interface{} {
	return []interface{}{
		&User{},
		&Follow{},
		&Post{},
		&PostLike{},
		&Comment{},
		&CommentLike{},
		&Notification{},
		&Conversation{},
		&Message{},
	}
}
