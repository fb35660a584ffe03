package domain

// FlasherDescriptor represents the subset of flasher_args.json consumed by the server
type FlasherDescriptor struct {
	FlashFiles    map[string]string `json:"flash_files,omitempty"`
	FlashSettings *FlashSettings    `json:"flash_settings,omitempty"`
}

// FlashSettings mirrors the optional flash_settings block written by esptool-based builds
type FlashSettings struct {
	FlashMode string `json:"flash_mode,omitempty"`
	FlashSize string `json:"flash_size,omitempty"`
	FlashFreq string `json:"flash_freq,omitempty"`
}

// ManifestEntry is a single file the client writes at Address
type ManifestEntry struct {
	File    string `json:"file"`
	Address uint32 `json:"address"`
}

// ChipIndex represents the optional chips.yaml file at the firmware root
type ChipIndex struct {
	Chips []ChipMeta `json:"chips" yaml:"chips" validate:"dive"`
}

// ChipMeta holds display metadata for a chip type
type ChipMeta struct {
	ID          string `json:"id" yaml:"id" validate:"required,chip_type"`
	Name        string `json:"name,omitempty" yaml:"name,omitempty"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	Baudrate    int    `json:"baudrate,omitempty" yaml:"baudrate,omitempty" validate:"omitempty,min=1"`
}

// ChipInfo describes a chip type available for flashing
type ChipInfo struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Baudrate    int    `json:"baudrate"`
}
