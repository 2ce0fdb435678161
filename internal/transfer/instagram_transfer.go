package transfer

// MetaObject is the reply shape of most Graph API writes and field lookups.
type MetaObject struct {
	ID        string `json:"id"`
	PostID    string `json:"post_id,omitempty"`
	Permalink string `json:"permalink,omitempty"`
}

// MetaContainerStatus is a media container's processing state. Instagram
// reports it in status_code with details in status; Threads reports it in
// status with details in error_message.
type MetaContainerStatus struct {
	ID           string `json:"id"`
	StatusCode   string `json:"status_code,omitempty"`
	Status       string `json:"status,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`
}

type MetaLongLivedToken struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

type InstagramUserInfo struct {
	ID       string `json:"id"`
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	Name     string `json:"name"`
}

type ThreadsUserInfo struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}
