// Package survey holds the guided questionnaire catalog and the public
// application texts served to clients. Everything here is static data: the
// catalog is versioned with the code, not stored in the database.
package survey

// Option is one selectable answer for a select or yes/no question.
type Option struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

// SubField is one input of a composite question, such as the height and
// weight triple.
type SubField struct {
	FieldName string `json:"field_name"`
	Label     string `json:"label"`
	Type      string `json:"type"`
	Required  bool   `json:"required"`
	Options   []int  `json:"options,omitempty"`
}

// Question is one step of the guided survey. Field names match the keys
// the screening pipeline reads from submitted answers.
type Question struct {
	ID        int        `json:"id"`
	FieldName string     `json:"field_name"`
	Question  string     `json:"question"`
	Type      string     `json:"type"`
	Options   []Option   `json:"options"`
	HelpText  string     `json:"help_text"`
	SubFields []SubField `json:"sub_fields,omitempty"`
	NoteText  string     `json:"note_text,omitempty"`
	InfoText  string     `json:"info_text,omitempty"`
	Required  bool       `json:"required"`
}

var yesNoOptions = []Option{
	{Value: "Yes", Label: "Yes"},
	{Value: "No", Label: "No"},
}

var questions = []Question{
	// Demographics
	{
		ID:        1,
		FieldName: "age",
		Question:  "What is your age?",
		Type:      "number_input",
		Options:   []Option{},
		HelpText:  "Enter your age in years (must be 18 or older)",
		Required:  true,
	},
	{
		ID:        2,
		FieldName: "gender",
		Question:  "What is your gender?",
		Type:      "select",
		Options: []Option{
			{Value: "Male", Label: "Male"},
			{Value: "Female", Label: "Female"},
		},
		HelpText: "Select your gender",
		Required: true,
	},
	{
		ID:        3,
		FieldName: "height_weight",
		Question:  "What is your height and weight?",
		Type:      "height_weight",
		Options:   []Option{},
		HelpText:  "Enter your height in feet and inches and weight in kilograms.",
		SubFields: []SubField{
			{FieldName: "height_feet", Label: "Height (Feet)", Type: "dropdown", Required: true, Options: []int{4, 5, 6, 7}},
			{FieldName: "height_inches", Label: "Height (Inches)", Type: "dropdown", Required: true, Options: []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11}},
			{FieldName: "weight_kg", Label: "Weight (kg)", Type: "number_input", Required: true},
		},
		Required: true,
	},
	{
		ID:        4,
		FieldName: "calcium_frequency",
		Question:  "How often do you consume milk, curd, paneer, or calcium-rich foods?",
		Type:      "select",
		Options: []Option{
			{Value: "Rarely", Label: "Rarely"},
			{Value: "Sometimes", Label: "Sometimes"},
			{Value: "Daily", Label: "Daily"},
		},
		HelpText: "Calcium intake is crucial for bone health",
		Required: false,
	},
	// Functional / frailty indicators
	{
		ID:        5,
		FieldName: "memory_issue",
		Question:  "Do you have serious difficulty remembering or concentrating?",
		Type:      "yes_no",
		Options:   yesNoOptions,
		HelpText:  "Cognitive function is linked to overall health",
		Required:  false,
	},
	{
		ID:        6,
		FieldName: "mobility_climb",
		Question:  "Do you have difficulty walking or climbing stairs?",
		Type:      "yes_no",
		Options:   yesNoOptions,
		HelpText:  "Mobility issues may indicate muscle and bone weakness",
		Required:  false,
	},
	{
		ID:        7,
		FieldName: "stand_long",
		Question:  "Do you have difficulty standing for long periods?",
		Type:      "yes_no",
		Options:   yesNoOptions,
		HelpText:  "Standing endurance relates to bone and muscle strength",
		Required:  false,
	},
	{
		ID:        8,
		FieldName: "activity_limited",
		Question:  "Are you limited in daily physical activities due to health problems?",
		Type:      "yes_no",
		Options:   yesNoOptions,
		HelpText:  "Physical activity limitations can affect bone density",
		Required:  false,
	},
	// Medical conditions
	{
		ID:        9,
		FieldName: "arthritis",
		Question:  "Has a doctor ever told you that you have arthritis (joint disease)?",
		Type:      "yes_no",
		Options:   yesNoOptions,
		HelpText:  "Arthritis is a long-term joint condition that causes pain, stiffness, or swelling, especially in knees, hips, hands, or spine.",
		NoteText:  "This refers only to a diagnosis given by a doctor.",
		InfoText:  "What is arthritis?\\n\\n• A condition affecting joints\\n• Causes long-term pain or stiffness\\n• Common in older adults\\n• Includes osteoarthritis and rheumatoid arthritis\\n• This question refers to a confirmed medical diagnosis",
		Required:  false,
	},
	{
		ID:        10,
		FieldName: "thyroid",
		Question:  "Have you been diagnosed with thyroid disease?",
		Type:      "yes_no",
		Options:   yesNoOptions,
		HelpText:  "Thyroid function affects bone metabolism",
		Required:  false,
	},
	{
		ID:        11,
		FieldName: "lung_disease",
		Question:  "Have you been diagnosed with chronic lung disease?",
		Type:      "yes_no",
		Options:   yesNoOptions,
		HelpText:  "Lung disease can be associated with bone health issues",
		Required:  false,
	},
	{
		ID:        12,
		FieldName: "heart_failure",
		Question:  "Have you been diagnosed with congestive heart failure?",
		Type:      "yes_no",
		Options:   yesNoOptions,
		HelpText:  "Heart conditions may affect overall bone health",
		Required:  false,
	},
	// Lifestyle factors
	{
		ID:        13,
		FieldName: "smoking",
		Question:  "Have you smoked regularly?",
		Type:      "yes_no",
		Options:   yesNoOptions,
		HelpText:  "Smoking accelerates bone loss",
		Required:  false,
	},
	{
		ID:        14,
		FieldName: "alcohol",
		Question:  "How often do you drink alcohol?",
		Type:      "select",
		Options: []Option{
			{Value: "None", Label: "None"},
			{Value: "Occasionally", Label: "Occasionally"},
			{Value: "Frequently", Label: "Frequently"},
		},
		HelpText: "Excess alcohol consumption affects bone strength",
		Required: false,
	},
	{
		ID:        15,
		FieldName: "general_health",
		Question:  "How would you rate your overall health?",
		Type:      "select",
		Options: []Option{
			{Value: "Excellent", Label: "Excellent"},
			{Value: "Good", Label: "Good"},
			{Value: "Fair", Label: "Fair"},
			{Value: "Poor", Label: "Poor"},
		},
		HelpText: "Your overall health status influences bone health",
		Required: false,
	},
}

// Questions returns the full catalog in presentation order. Callers must
// treat the returned slice as read-only.
func Questions() []Question {
	return questions
}
