// Package language maps contact languages to speech-recognizer language
// codes. Endangered languages are not supported directly by the recognizer,
// so transcription runs against the dominant contact language as a proxy.
package language

// contactToRecognizer maps human-readable contact language names to the
// ISO 639-1 codes the recognizer accepts.
var contactToRecognizer = map[string]string{
	"Korean": "ko", "Japanese": "ja", "Mandarin Chinese": "zh",
	"Thai": "th", "Vietnamese": "vi", "Khmer": "km",
	"Burmese": "my", "Malay": "ms", "Indonesian": "id",
	"Filipino": "tl", "Hindi": "hi", "Bengali": "bn",
	"Tamil": "ta", "Nepali": "ne", "Sinhala": "si",
	"Russian": "ru", "Arabic": "ar", "Persian": "fa",
	"Turkish": "tr", "French": "fr", "Spanish": "es",
	"Portuguese": "pt", "English": "en", "German": "de",
	"Italian": "it", "Dutch": "nl", "Polish": "pl",
	"Swedish": "sv", "Norwegian": "no", "Danish": "da",
	"Finnish": "fi", "Greek": "el", "Hebrew": "he",
	"Swahili": "sw", "Amharic": "am", "Hausa": "ha",
	"Yoruba": "yo", "Zulu": "zu", "Afrikaans": "af",
	"Urdu": "ur", "Gujarati": "gu", "Marathi": "mr",
	"Telugu": "te", "Kannada": "kn", "Malayalam": "ml",
	"Punjabi": "pa", "Lao": "lo", "Georgian": "ka",
	"Armenian": "hy", "Azerbaijani": "az", "Kazakh": "kk",
	"Uzbek": "uz", "Mongolian": "mn", "Maori": "mi",
	"Welsh": "cy", "Catalan": "ca", "Galician": "gl",
	"Basque": "eu", "Irish": "ga", "Icelandic": "is",
	"Estonian": "et", "Latvian": "lv", "Lithuanian": "lt",
	"Czech": "cs", "Slovak": "sk", "Slovenian": "sl",
	"Croatian": "hr", "Serbian": "sr", "Bosnian": "bs",
	"Bulgarian": "bg", "Romanian": "ro", "Ukrainian": "uk",
	"Belarusian": "be", "Hungarian": "hu", "Albanian": "sq",
	"Macedonian": "mk", "Maltese": "mt",
}

// Resolve derives the best recognizer language code from the given contact
// languages. The first contact language with a known mapping wins. When none
// match, a 2-letter languageCode is passed through as-is; anything else
// falls back to "en".
func Resolve(contactLanguages []string, languageCode string) string {
	for _, lang := range contactLanguages {
		if code, ok := contactToRecognizer[lang]; ok {
			return code
		}
	}
	if len(languageCode) == 2 {
		return languageCode
	}
	return "en"
}
