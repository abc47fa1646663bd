package storage

import (
	"context"
	"os"
)

type FileImage struct {
	FilePath string
}

func NewFileImage(filePath string) *FileImage {
	return &FileImage{FilePath: filePath}
}

func (f *FileImage) Load(ctx context.Context) ([]byte, error) {
	return os.ReadFile(f.FilePath)
}
