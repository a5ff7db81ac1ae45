package filestore

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/rpggio/tasktrellis/internal/domain/task"
	"gopkg.in/yaml.v3"
)

// Format selects the on-disk encoding of task files.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// ParseFormat accepts "json", "yaml" or "yml". Empty means JSON.
func ParseFormat(s string) (Format, error) {
	switch s {
	case "", "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	}
	return "", fmt.Errorf("unsupported data format %q", s)
}

// FileName is the task file name inside a project directory.
func (f Format) FileName() string {
	if f == FormatYAML {
		return "tasks.yaml"
	}
	return "tasks.json"
}

func (f Format) encode(tasks []task.Task) ([]byte, error) {
	if tasks == nil {
		tasks = []task.Task{}
	}
	switch f {
	case FormatYAML:
		return yaml.Marshal(tasks)
	default:
		data, err := json.MarshalIndent(tasks, "", "  ")
		if err != nil {
			return nil, err
		}
		return append(data, '\n'), nil
	}
}

func (f Format) decode(data []byte) ([]task.Task, error) {
	var tasks []task.Task
	if len(bytes.TrimSpace(data)) == 0 {
		return []task.Task{}, nil
	}
	var err error
	switch f {
	case FormatYAML:
		err = yaml.Unmarshal(data, &tasks)
	default:
		err = json.Unmarshal(data, &tasks)
	}
	if err != nil {
		return nil, err
	}
	if tasks == nil {
		tasks = []task.Task{}
	}
	for i := range tasks {
		if tasks[i].Dependencies == nil {
			tasks[i].Dependencies = []int{}
		}
		if tasks[i].Subtasks == nil {
			tasks[i].Subtasks = []int{}
		}
	}
	return tasks, nil
}
