package places

// Wire shapes of the Places web service (legacy JSON endpoints).

type apiStatus struct {
	Status       string `json:"status"`
	ErrorMessage string `json:"error_message,omitempty"`
}

func (s *apiStatus) status() *apiStatus { return s }

type statusCarrier interface {
	status() *apiStatus
}

type findPlaceResponse struct {
	apiStatus
	Candidates []struct {
		PlaceID string `json:"place_id"`
	} `json:"candidates"`
}

type detailsResponse struct {
	apiStatus
	Result *placeResult `json:"result"`
}

type placeResult struct {
	Name             string    `json:"name"`
	FormattedAddress string    `json:"formatted_address"`
	Geometry         *geometry `json:"geometry"`
	Photos           []struct {
		PhotoReference string `json:"photo_reference"`
	} `json:"photos"`
}

type geometry struct {
	Location struct {
		Lat float64 `json:"lat"`
		Lng float64 `json:"lng"`
	} `json:"location"`
}
