package transfer

type LinkedInUserInfo struct {
	Sub  string `json:"sub"`
	Name string `json:"name"`
}

type LinkedInInitializeUploadRequest struct {
	InitializeUploadRequest struct {
		Owner string `json:"owner"`
	} `json:"initializeUploadRequest"`
}

type LinkedInInitializeUploadResponse struct {
	Value struct {
		UploadURL string `json:"uploadUrl"`
		Image     string `json:"image"`
	} `json:"value"`
}

type LinkedInDistribution struct {
	FeedDistribution               string   `json:"feedDistribution"`
	TargetEntities                 []string `json:"targetEntities"`
	ThirdPartyDistributionChannels []string `json:"thirdPartyDistributionChannels"`
}

type LinkedInMedia struct {
	ID      string `json:"id"`
	AltText string `json:"altText,omitempty"`
}

type LinkedInMultiImage struct {
	Images []LinkedInMedia `json:"images"`
}

type LinkedInPostContent struct {
	Media      *LinkedInMedia      `json:"media,omitempty"`
	MultiImage *LinkedInMultiImage `json:"multiImage,omitempty"`
}

type LinkedInPostRequest struct {
	Author                    string               `json:"author"`
	Commentary                string               `json:"commentary"`
	Visibility                string               `json:"visibility"`
	Distribution              LinkedInDistribution `json:"distribution"`
	Content                   *LinkedInPostContent `json:"content,omitempty"`
	LifecycleState            string               `json:"lifecycleState"`
	IsReshareDisabledByAuthor bool                 `json:"isReshareDisabledByAuthor"`
}
