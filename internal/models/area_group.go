package models

// AreaGroup names a set of municipalities, so a customer can ask for "北摂"
// instead of listing every city in it.
type AreaGroup struct {
	Name   string   `json:"name" binding:"required"`
	Cities []string `json:"cities"`
}
