package model

// SessionStatus はクライアント側セッションの状態を表す。
type SessionStatus string

const (
	// SessionStatusLoading はセッション確認中を表す。初期状態。
	SessionStatusLoading SessionStatus = "loading"
	// SessionStatusAuthorized は有効なセッションを保持していることを表す。
	SessionStatusAuthorized SessionStatus = "authorization"
	// SessionStatusUnauthorized は有効なセッションがないことを表す。
	SessionStatusUnauthorized SessionStatus = "unauthorization"
)
