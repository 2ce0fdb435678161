package transfer

type FacebookPage struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	AccessToken string `json:"access_token"`
}

type FacebookPagesResponse struct {
	Data []FacebookPage `json:"data"`
}

type FacebookAttachedMedia struct {
	MediaFBID string `json:"media_fbid"`
}
