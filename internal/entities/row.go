package entities

// OutputColumn is the header appended to processed documents.
const OutputColumn = "Output Image Urls"

// Row is one validated product line of an uploaded CSV.
type Row struct {
	SerialNumber    string
	ProductName     string
	ImageURLs       []string
	OutputImageURLs []string
}
