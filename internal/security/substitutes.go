package security

// Substitutes returned by FilterOutput. None of them matches any output
// pattern, so filtering a substitute returns it unchanged.
const (
	DiagnosisSubstitute = "I'm not able to tell you what condition you may or may not have. " +
		"I can explain medical terms and what report values mean, but identifying a condition " +
		"is the role of a qualified healthcare provider. Would you like me to explain any terms in your report instead?"

	PrescriptionSubstitute = "I'm not able to recommend medicines, doses or specific treatments. " +
		"Only a licensed clinician can make that call. I can explain what a medicine is generally " +
		"used for or help you understand your results."

	MentalHealthSubstitute = "I can't assess mental health conditions. If you're going through something " +
		"difficult, please reach out to a licensed mental health professional."

	JokesSubstitute = "I'd like to keep our conversation factual and focused on medical information. " +
		"Please ask me about your report or a health topic."
)
