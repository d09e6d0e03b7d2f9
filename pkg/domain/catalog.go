package domain

// DefaultRiskCatalog lists the risk categories seeded at startup, aligned
// with the classifier's category vocabulary. "sec" (safe) is deliberately
// absent: it marks safe content, not a risk to block.
var DefaultRiskCatalog = []RiskCategory{
	{Code: "pc", Name: "Pornographic Contraband"},
	{Code: "dc", Name: "Drug Crimes"},
	{Code: "dw", Name: "Dangerous Weapons"},
	{Code: "pi", Name: "Property Infringement"},
	{Code: "ec", Name: "Economic Crimes"},
	{Code: "ac", Name: "Abusive Curses"},
	{Code: "def", Name: "Defamation"},
	{Code: "ti", Name: "Threats and Intimidation"},
	{Code: "cy", Name: "Cyberbullying"},
	{Code: "ph", Name: "Physical Health"},
	{Code: "mh", Name: "Mental Health"},
	{Code: "se", Name: "Social Ethics"},
	{Code: "sci", Name: "Science Ethics"},
	{Code: "pp", Name: "Personal Privacy"},
	{Code: "cs", Name: "Commercial Secret"},
	{Code: "acc", Name: "Access Control"},
	{Code: "mc", Name: "Malicious Code"},
	{Code: "ha", Name: "Hacker Attack"},
	{Code: "ps", Name: "Physical Security"},
	{Code: "ter", Name: "Violent Terrorist Activities"},
	{Code: "sd", Name: "Social Disruption"},
	{Code: "ext", Name: "Extremist Ideological Trends"},
	{Code: "fin", Name: "Finance"},
	{Code: "med", Name: "Medicine"},
	{Code: "law", Name: "Law"},
	{Code: "cm", Name: "Corruption of Minors"},
	{Code: "ma", Name: "Minor Abuse and Exploitation"},
	{Code: "md", Name: "Minor Delinquency"},
}
