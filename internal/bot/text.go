package bot

const (
	textDisclaimer = "*Copyright Disclaimer*\n\n" +
		"This bot is for educational purposes only.\n" +
		"Downloaded content belongs to its respective copyright holders.\n" +
		"Please respect copyright laws and the terms of service of content providers."

	textUsage = "Send me a link to a video and I will send the video back.\n\n" +
		"Videos are fetched in 360p or lower and must fit in Telegram's 50MB upload limit."

	textInvalidURL  = "❌ Please send a valid video URL."
	textProcessing  = "⏳ Processing your request..."
	textDownloading = "⬇️ Downloading..."
	textUploading   = "📤 Uploading..."

	textTooLarge      = "⚠️ The video is too large for Telegram (50MB limit)."
	textFileNotFound  = "❌ Download failed: File not found."
	textUnavailable   = "❌ The requested content is not available."
	textLoginRequired = "⚠️ Login required or rate-limit reached.\n" +
		"Please upload a valid `cookies.txt` file from your browser session.\n\n" +
		"See: https://github.com/yt-dlp/yt-dlp/wiki/FAQ#how-do-i-pass-cookies-to-yt-dlp"
	textErrorFormat = "❌ Error: %v"
)
