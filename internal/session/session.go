// Package session はログインなしの匿名セッションを扱います。
// セッションIDは履歴の保存単位として使います。
package session

import (
	"net/http"
	"time"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	CookieName    = "lp_session"
	sessionKeyID  = "sid"
	sessionKeyIat = "issued_at"

	// ContextIDKey はハンドラー間でセッションIDを共有するためのキーです。
	ContextIDKey = "session.id"
)

var maxSessionLifetime = 30 * 24 * time.Hour

// MaxAgeSeconds はクッキーの MaxAge に利用する秒数を返します。
func MaxAgeSeconds() int {
	return int(maxSessionLifetime.Seconds())
}

// Middleware はクッキーセッションを有効にし、セッションIDを発行するミドルウェアを返します。
// secret が空の場合は起動ごとにランダムな鍵を使うため、再起動でセッションが切れます。
func Middleware(secret string, secure bool) []gin.HandlerFunc {
	key := []byte(secret)
	if len(key) == 0 {
		key = []byte(uuid.NewString() + uuid.NewString())
	}
	store := cookie.NewStore(key)
	store.Options(sessions.Options{
		Path:     "/",
		MaxAge:   MaxAgeSeconds(),
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
	return []gin.HandlerFunc{sessions.Sessions(CookieName, store), Ensure()}
}

// Ensure はセッションIDが無ければ新しく発行し、gin.Context に保存します。
func Ensure() gin.HandlerFunc {
	return func(c *gin.Context) {
		session := sessions.Default(c)
		id, ok := session.Get(sessionKeyID).(string)
		if !ok || id == "" {
			id = uuid.NewString()
			session.Set(sessionKeyID, id)
			session.Set(sessionKeyIat, time.Now().Unix())
			// 保存に失敗しても今回のリクエストは同じIDで処理する
			_ = session.Save()
		}
		c.Set(ContextIDKey, id)
		c.Next()
	}
}

// ID は現在のリクエストのセッションIDを返します。
func ID(c *gin.Context) string {
	return c.GetString(ContextIDKey)
}
