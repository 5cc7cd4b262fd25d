package models

// Language is one entry of the agent's supported-language list.
type Language struct {
	Code string `json:"code"`
	Name string `json:"name"`
	Flag string `json:"flag"`
}
