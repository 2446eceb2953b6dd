package dto

// SourceResponse describes the download source the acquisition worker uses.
type SourceResponse struct {
	Active  string `json:"active"`
	Default string `json:"default"`
}

func FromSourceData(active, defaultURL string) SourceResponse {
	return SourceResponse{
		Active:  active,
		Default: defaultURL,
	}
}
