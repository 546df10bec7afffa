package classify

// DefaultTargetVariants are the spellings of the monitored trial compound.
var DefaultTargetVariants = []string{
	"cbp501",
	"cbp-501",
	"cbp 501",
	"cb-p501",
	"cb p501",
}

// DefaultPhaseKeywords indicate a Phase III trial.
var DefaultPhaseKeywords = []string{
	"phase 3", "phase iii", "phase three",
	"phase-3", "phase-iii", "phaseiii",
	"p3", "piii",
	"3相", "三相", "III相",
	"pivotal", "registration", "confirmatory",
}

// DefaultStartKeywords indicate that a trial has started.
var DefaultStartKeywords = []string{
	"start", "initiat", "begin", "launch", "commence",
	"開始", "スタート", "着手", "実施",
	"first patient", "enrollment", "recruit",
}

// DefaultApprovalPhrases mark news about the EU approval process.
var DefaultApprovalPhrases = []string{
	"recommended for approval",
	"positive opinion",
	"marketing authorisation",
	"new medicine",
	"chmp",
	"committee for medicinal products",
	"approved",
	"authorisation",
	"recommendation",
	"conditional marketing",
	"orphan medicine",
	"biosimilar",
	"generic medicine",
}

// DefaultTopicKeywords are surfaced in approval notifications. They do not
// affect classification.
var DefaultTopicKeywords = []string{
	"vaccine", "treatment", "therapy", "medicine", "drug",
	"cancer", "oncology", "diabetes", "cardiovascular",
	"antibiotic", "antiviral", "biosimilar", "generic",
	"approved", "authorisation", "recommendation", "chmp",
	"positive opinion", "marketing authorisation", "conditional",
	"pfizer", "roche", "novartis", "gsk", "astrazeneca",
	"merck", "sanofi", "johnson", "bayer", "takeda",
}
