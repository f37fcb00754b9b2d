package model

type EmailSettings struct {
	Enabled  bool   `json:"enabled" yaml:"enabled"`
	Email    string `json:"email" yaml:"email"`
	AuthCode string `json:"authCode,omitempty" yaml:"authCode"`
}
