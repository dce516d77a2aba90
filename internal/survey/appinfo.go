package survey

// AppInfo is the public application metadata block.
type AppInfo struct {
	AppName     string `json:"app_name"`
	Version     string `json:"version"`
	Description string `json:"description"`
	Disclaimer  string `json:"disclaimer"`
	Contact     string `json:"contact"`
	PrivacyURL  string `json:"privacy_url"`
	TermsURL    string `json:"terms_url"`
}

// PublicAppInfo returns the metadata served to unauthenticated clients.
func PublicAppInfo() AppInfo {
	return AppInfo{
		AppName:     "OssoPulse",
		Version:     "1.0.0",
		Description: "AI-based osteoporosis risk screening tool",
		Disclaimer:  "This app does not provide medical diagnosis. Results are educational risk estimates only.",
		Contact:     "support@ossopulse.app",
		PrivacyURL:  "/privacy",
		TermsURL:    "/terms",
	}
}

// VoiceScript is the approved landing narration text for text-to-speech.
const VoiceScript = "Hello and welcome to OssoPulse.\n\n" +
	"This application helps you understand your osteoporosis risk level in a simple and clear manner.\n\n" +
	"Please note carefully, this app does not diagnose osteoporosis and it does not replace consultation with a qualified medical professional. " +
	"It only provides an AI-based risk assessment for awareness purposes.\n\n" +
	"We collect basic information such as your age, gender, lifestyle habits, and certain medical history details. " +
	"These inputs are used only to calculate your personalized risk score.\n\n" +
	"Your data is kept secure and is not sold to any third party.\n\n" +
	"Let me briefly explain how the app works.\n\n" +
	"Step one: Create your account using your phone number.\n\n" +
	"Step two: Enter your health and lifestyle details.\n\n" +
	"Step three: Our machine learning model analyses your information.\n\n" +
	"Step four: You receive your risk category, which is Low, Moderate, or High.\n\n" +
	"Step five: You get personalized recommendations and reminder notifications to support your bone health.\n\n" +
	"Osteoporosis affects over 200 million people worldwide. One in three women and one in five men above the age of fifty are at risk.\n\n" +
	"It is always better to be aware early and take preventive steps.\n\n" +
	"To continue, please select Sign Up if you are new, or Login if you already have an account.\n\n" +
	"Thank you for choosing OssoPulse."
