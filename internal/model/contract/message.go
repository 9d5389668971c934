package contract

// ChatRole is the author of a ChatMessage. The set is closed: system prompts
// are provider configuration and are injected by each adapter.
type ChatRole string

const (
	RoleUser      ChatRole = "user"
	RoleAssistant ChatRole = "assistant"
)

// ImageMime is the declared media type of raw image bytes.
type ImageMime int

const (
	ImageJPEG ImageMime = iota
	ImagePNG
	ImageGIF
	ImageWEBP
)

func (m ImageMime) MimeType() string {
	switch m {
	case ImagePNG:
		return "image/png"
	case ImageGIF:
		return "image/gif"
	case ImageWEBP:
		return "image/webp"
	default:
		return "image/jpeg"
	}
}

// ImageMimeFromType maps a media type such as "image/png" back to an ImageMime.
func ImageMimeFromType(mediaType string) (ImageMime, bool) {
	switch mediaType {
	case "image/jpeg", "image/jpg":
		return ImageJPEG, true
	case "image/png":
		return ImagePNG, true
	case "image/gif":
		return ImageGIF, true
	case "image/webp":
		return ImageWEBP, true
	default:
		return ImageJPEG, false
	}
}

type MessageKind int

const (
	MessageKindText MessageKind = iota
	MessageKindImage
	MessageKindPDF
	MessageKindImageURL
)

func (k MessageKind) String() string {
	switch k {
	case MessageKindImage:
		return "image"
	case MessageKindPDF:
		return "pdf"
	case MessageKindImageURL:
		return "image_url"
	default:
		return "text"
	}
}

// MessageType is the attachment carried by a message. Exactly one variant is
// active: Text, Image, PDF or ImageURL.
type MessageType interface {
	Kind() MessageKind
	messageType()
}

type Text struct{}

type Image struct {
	Mime ImageMime
	Data []byte
}

type PDF struct {
	Data []byte
}

type ImageURL struct {
	URL string
}

func (Text) Kind() MessageKind     { return MessageKindText }
func (Image) Kind() MessageKind    { return MessageKindImage }
func (PDF) Kind() MessageKind      { return MessageKindPDF }
func (ImageURL) Kind() MessageKind { return MessageKindImageURL }

func (Text) messageType()     {}
func (Image) messageType()    {}
func (PDF) messageType()      {}
func (ImageURL) messageType() {}

// ChatMessage is one turn of a conversation. Build it with User or Assistant;
// a built message is never modified.
type ChatMessage struct {
	role        ChatRole
	messageType MessageType
	content     string
}

func (m ChatMessage) Role() ChatRole {
	if m.role == "" {
		return RoleUser
	}
	return m.role
}

// Type returns the message variant. Attachment bytes are copied so the
// message stays unchanged whatever the caller does with them.
func (m ChatMessage) Type() MessageType {
	switch t := m.messageType.(type) {
	case nil:
		return Text{}
	case Image:
		return Image{Mime: t.Mime, Data: cloneBytes(t.Data)}
	case PDF:
		return PDF{Data: cloneBytes(t.Data)}
	default:
		return t
	}
}

func (m ChatMessage) Content() string {
	return m.content
}

// MessageBuilder assembles a ChatMessage. Attachment setters overwrite each
// other; the last one called wins.
type MessageBuilder struct {
	role        ChatRole
	messageType MessageType
	content     string
}

func NewMessage(role ChatRole) *MessageBuilder {
	return &MessageBuilder{role: role, messageType: Text{}}
}

func User() *MessageBuilder {
	return NewMessage(RoleUser)
}

func Assistant() *MessageBuilder {
	return NewMessage(RoleAssistant)
}

func (b *MessageBuilder) Content(content string) *MessageBuilder {
	b.content = content
	return b
}

func (b *MessageBuilder) Image(mime ImageMime, data []byte) *MessageBuilder {
	b.messageType = Image{Mime: mime, Data: cloneBytes(data)}
	return b
}

func (b *MessageBuilder) PDF(data []byte) *MessageBuilder {
	b.messageType = PDF{Data: cloneBytes(data)}
	return b
}

func (b *MessageBuilder) ImageURL(url string) *MessageBuilder {
	b.messageType = ImageURL{URL: url}
	return b
}

func (b *MessageBuilder) Build() ChatMessage {
	return ChatMessage{
		role:        b.role,
		messageType: b.messageType,
		content:     b.content,
	}
}

// UserText is shorthand for User().Content(text).Build().
func UserText(text string) ChatMessage {
	return User().Content(text).Build()
}

// AssistantText is shorthand for Assistant().Content(text).Build().
func AssistantText(text string) ChatMessage {
	return Assistant().Content(text).Build()
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

// ReasoningEffort tunes how much a reasoning model thinks before answering.
type ReasoningEffort string

const (
	ReasoningLow    ReasoningEffort = "low"
	ReasoningMedium ReasoningEffort = "medium"
	ReasoningHigh   ReasoningEffort = "high"
)

func (r ReasoningEffort) String() string {
	return string(r)
}

func (r ReasoningEffort) Valid() bool {
	switch r {
	case "", ReasoningLow, ReasoningMedium, ReasoningHigh:
		return true
	default:
		return false
	}
}
