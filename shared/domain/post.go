package domain

// PostDraft is an authored post before rendering. Format is "html" or "markdown".
type PostDraft struct {
	Title        PostTitle
	Body         string
	Format       string
	ThumbnailURL *string
}

// PostDetail is a post with the files it references.
type PostDetail struct {
	Post
	Files []AttachedFile
}
