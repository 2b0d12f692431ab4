package chat

// Entry is a canned answer and the keywords that select it.
type Entry struct {
	Topic    string
	Keywords []string
	Answer   string
}

// faqs are answered verbatim when the question matches exactly, ignoring case.
var faqs = []struct {
	Question string
	Answer   string
}{
	{"What is this platform for?", "This platform helps match lost and found persons using face recognition."},
	{"How does the system work?", "Faces are detected in each uploaded photo and compared against the lost, found and live feed records."},
	{"Is my data secure?", "Yes, your data is stored securely and is only used for the purpose of reuniting lost individuals."},
	{"How do I upload details of a lost person?", "Open 'Report Lost Person', fill out the required information and upload a clear photo of the missing individual."},
	{"How will I know if there's a match?", "You'll see the match result immediately after uploading. If there's a close match, we'll also notify you via email."},
	{"What if my photo isn't uploading?", "Ensure it's a JPG, PNG or WebP under 5MB. Also, make sure you're filling out all required fields."},
}

// DefaultEntries is the built-in knowledge base.
var DefaultEntries = []Entry{
	{
		Topic:    "general",
		Keywords: []string{"what", "platform", "for"},
		Answer:   "This platform helps match lost and found persons using face recognition. You can upload photos of missing or found individuals, and the system tries to match them automatically.",
	},
	{
		Topic:    "general",
		Keywords: []string{"purpose", "goal", "aim"},
		Answer:   "The goal is to help locate lost individuals and reunite them with their families by matching the faces in uploaded photos.",
	},
	{
		Topic:    "technology",
		Keywords: []string{"how", "system", "work"},
		Answer:   "Each uploaded photo goes to the face-recognition service, which detects the face and compares it with stored records. Upload, detect, compare, notify.",
	},
	{
		Topic:    "technology",
		Keywords: []string{"face", "matching", "verification"},
		Answer:   "Matching compares the face from a new upload with every face from the opposite list: found photos are checked against lost reports and the other way round.",
	},
	{
		Topic:    "usage",
		Keywords: []string{"crop", "photo", "face"},
		Answer:   "After you pick a photo a crop window opens. Drag to position the square over the face and use the zoom slider to tighten it, then press 'Crop & Save'. Only the cropped square is uploaded.",
	},
	{
		Topic:    "usage",
		Keywords: []string{"upload", "lost", "person", "how"},
		Answer:   "Open 'Report Lost Person', fill out the required information and upload a clear photo of the missing individual. Make sure the photo shows the face clearly for better matching results.",
	},
	{
		Topic:    "usage",
		Keywords: []string{"found", "someone", "what", "should", "do"},
		Answer:   "Open 'Upload Found Person', fill out the form and upload the person's photo. The system will try to match it with missing person records and notify the people who reported them.",
	},
	{
		Topic:    "usage",
		Keywords: []string{"live", "feed", "camera"},
		Answer:   "Live feed frames are checked against the lost person records as they arrive, and the reporters are alerted when a face matches.",
	},
	{
		Topic:    "matching",
		Keywords: []string{"know", "match", "how", "will"},
		Answer:   "You'll see the match result immediately after uploading. If there's a close match, we'll also notify you via email. You can also check your dashboard.",
	},
	{
		Topic:    "matching",
		Keywords: []string{"notified", "match", "found", "later"},
		Answer:   "Yes, the system sends an email when a new match is detected for one of your submissions.",
	},
	{
		Topic:    "security",
		Keywords: []string{"data", "secure", "security", "privacy"},
		Answer:   "Your data is stored securely and is only used for the purpose of reuniting lost individuals.",
	},
	{
		Topic:    "troubleshooting",
		Keywords: []string{"photo", "isn't", "uploading"},
		Answer:   "Ensure it's a JPG, PNG or WebP under 5MB. Also, make sure you're filling out all required fields. If problems persist, pick the photo again and re-crop it.",
	},
	{
		Topic:    "troubleshooting",
		Keywords: []string{"422", "unprocessable", "error"},
		Answer:   "This usually means some form fields are missing. Please double-check all inputs before submitting, and make sure the image contains a clearly visible face.",
	},
	{
		Topic:    "troubleshooting",
		Keywords: []string{"no", "face", "detected"},
		Answer:   "The service could not find a face in the photo. Re-crop so the face fills most of the square, and use a well-lit, unobstructed picture.",
	},
	{
		Topic:    "troubleshooting",
		Keywords: []string{"email", "didn't", "get"},
		Answer:   "Please check your spam folder. If it is still missing, contact support with your face ID so we can investigate.",
	},
}

// Suggestions are offered when the chat opens.
func Suggestions() []string {
	out := make([]string, len(faqs))
	for i, f := range faqs {
		out[i] = f.Question
	}
	return out
}
