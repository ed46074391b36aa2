package utils

import "testing"

func TestValidatePath(t *testing.T) {
	tests := []struct {
		path    string
		wantErr bool
	}{
		{"file.txt", false},
		{"dir/sub/file.txt", false},
		{"/dir/file.txt/", false},
		{"dir/..hidden", false},
		{"", true},
		{"/", true},
		{"dir//file", true},
		{"dir/../file", true},
		{"./file", true},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			err := ValidatePath(tt.path)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidatePath(%q) error = %v, wantErr %v", tt.path, err, tt.wantErr)
			}
		})
	}
}
