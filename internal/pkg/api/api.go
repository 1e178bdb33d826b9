package api

import "time"

const (
	// HeaderAssemblyAIToken carries caller's own transcription key
	HeaderAssemblyAIToken = "AssemblyAIToken"
	// HeaderGeminiToken carries caller's own text generation key
	HeaderGeminiToken = "GeminiAPIToken"

	// PrmFile form file param name
	PrmFile = "file"
	// PrmID path param name
	PrmID = "id"
)

// DefaultLanguage is used when request has no language
const DefaultLanguage = "en"

// TranscribeRequest is the input of transcribe operation
type TranscribeRequest struct {
	AudioURL        string  `json:"audioUrl" validate:"required,url"`
	WhisperID       string  `json:"whisperId,omitempty"`
	Language        string  `json:"language,omitempty" validate:"omitempty,max=10"`
	DurationSeconds float64 `json:"durationSeconds" validate:"required,gte=1"`
}

// IDResponse is returned by operations that return only ID
type IDResponse struct {
	ID string `json:"id"`
}

// WhisperListItem is one item of the list operation
type WhisperListItem struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	Preview   string    `json:"preview"`
	Timestamp time.Time `json:"timestamp"`
}

// AudioTrack is a transcribed audio segment
type AudioTrack struct {
	ID                   string    `json:"id"`
	FileURL              string    `json:"fileUrl"`
	PartialTranscription string    `json:"partialTranscription"`
	Language             string    `json:"language,omitempty"`
	CreatedAt            time.Time `json:"createdAt"`
}

// Transformation is a derived text of a whisper
type Transformation struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"createdAt"`
}

// Whisper is a full note with tracks and transformations
type Whisper struct {
	ID                string            `json:"id"`
	UserID            string            `json:"userId"`
	Title             string            `json:"title"`
	FullTranscription string            `json:"fullTranscription"`
	CreatedAt         time.Time         `json:"createdAt"`
	AudioTracks       []*AudioTrack     `json:"audioTracks"`
	Transformations   []*Transformation `json:"transformations"`
}

// UpdateTranscriptionRequest is the input of transcription update
type UpdateTranscriptionRequest struct {
	FullTranscription string `json:"fullTranscription"`
}

// UpdateTranscriptionResponse is the output of transcription update
type UpdateTranscriptionResponse struct {
	ID                string `json:"id"`
	FullTranscription string `json:"fullTranscription"`
}

// UpdateTitleRequest is the input of title update
type UpdateTitleRequest struct {
	Title string `json:"title" validate:"required"`
}

// UpdateTitleResponse is the output of title update
type UpdateTitleResponse struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// TransformationRequest asks to generate a transformation
type TransformationRequest struct {
	Type string `json:"type" validate:"required,oneof=summary action-items blog-post"`
}

// TransformationResponse is returned when a transformation is queued
type TransformationResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// Limits shows what is left for the current day
type Limits struct {
	MinutesLeft         *int `json:"minutesLeft,omitempty"`
	TransformationsLeft int  `json:"transformationsLeft"`
	Unlimited           bool `json:"unlimited"`
}

// UploadResponse is returned after audio upload
type UploadResponse struct {
	URL  string `json:"url"`
	Path string `json:"path"`
}

// PresignRequest asks for a direct upload URL
type PresignRequest struct {
	FilePath    string `json:"filePath" validate:"required,max=200"`
	ContentType string `json:"contentType" validate:"required"`
}

// PresignResponse contains upload URL and the URL the object will have
type PresignResponse struct {
	UploadURL string `json:"uploadUrl"`
	URL       string `json:"url"`
	Path      string `json:"path"`
}
