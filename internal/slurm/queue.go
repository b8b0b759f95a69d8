package slurm

import (
	"bufio"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/kballard/go-shellquote"
)

// ParseError is output that does not have the expected shape.
type ParseError struct {
	What   string
	Output string
}

func (e *ParseError) Error() string {
	out := strings.TrimSpace(e.Output)
	if len(out) > 200 {
		out = out[:200] + "..."
	}
	return fmt.Sprintf("unable to parse %s from %q", e.What, out)
}

type JobStatus string

const (
	StatusRunning   JobStatus = "Running"
	StatusPending   JobStatus = "Pending"
	StatusCompleted JobStatus = "Completed"
	StatusFailed    JobStatus = "Failed"
	StatusCancelled JobStatus = "Cancelled"
)

func JobStatuses() []JobStatus {
	return []JobStatus{StatusRunning, StatusPending, StatusCompleted, StatusFailed, StatusCancelled}
}

// ParseJobStatus maps a squeue state, long or compact form, to a JobStatus.
func ParseJobStatus(s string) JobStatus {
	s = strings.ToUpper(strings.TrimSpace(s))
	// "CANCELLED by 1234"
	s, _, _ = strings.Cut(s, " ")
	switch s {
	case "RUNNING", "R", "COMPLETING", "CG":
		return StatusRunning
	case "COMPLETED", "CD":
		return StatusCompleted
	case "FAILED", "F", "TIMEOUT", "TO", "NODE_FAIL", "NF", "OUT_OF_MEMORY", "OOM", "BOOT_FAIL", "BF", "DEADLINE", "DL":
		return StatusFailed
	case "CANCELLED", "CA", "PREEMPTED", "PR", "REVOKED", "RV":
		return StatusCancelled
	default:
		// PENDING, CONFIGURING, REQUEUED, SUSPENDED, RESIZING...
		return StatusPending
	}
}

type JobRecord struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Status      JobStatus `json:"status"`
	Node        string    `json:"node,omitempty"`
	Partition   string    `json:"partition"`
	TimeLimit   string    `json:"time_limit"`
	SubmittedAt time.Time `json:"submitted_at"`
}

const queueFormat = "%i|%j|%T|%N|%P|%l|%V"

// QueueCommand lists the jobs of user, one pipe separated record per line.
func QueueCommand(user string) string {
	return fmt.Sprintf("squeue -u %s --noheader --format='%s'", shellquote.Join(user), queueFormat)
}

const submitTimeLayout = "2006-01-02T15:04:05"

// ParseQueue parses the output of QueueCommand. Empty output is an empty list
// and malformed lines are skipped.
func ParseQueue(out string) []JobRecord {
	jobs := []JobRecord{}
	scanner := bufio.NewScanner(strings.NewReader(out))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		fields := strings.Split(line, "|")
		if len(fields) != 7 || strings.TrimSpace(fields[0]) == "" {
			continue
		}
		for i := range fields {
			fields[i] = strings.TrimSpace(fields[i])
		}
		job := JobRecord{
			ID:        fields[0],
			Name:      fields[1],
			Status:    ParseJobStatus(fields[2]),
			Partition: fields[4],
			TimeLimit: fields[5],
		}
		if n := fields[3]; n != "" && n != "(null)" && n != "(None)" {
			job.Node = n
		}
		if t, err := time.ParseInLocation(submitTimeLayout, fields[6], time.Local); err == nil {
			job.SubmittedAt = t
		}
		jobs = append(jobs, job)
	}
	return jobs
}

var jobIDRe = regexp.MustCompile(`^\d+(_\d+)?$`)

func ValidJobID(id string) bool {
	return jobIDRe.MatchString(id)
}

func CancelCommand(jobID string) string {
	return shellquote.Join("scancel", jobID)
}

// NodeRecord is a line of `sinfo -N`.
type NodeRecord struct {
	Name      string `json:"name"`
	Partition string `json:"partition"`
	State     string `json:"state"`
}

func NodesCommand(partition string) string {
	return shellquote.Join("sinfo", "-N", "-h", "-p", partition)
}

// ParseNodes parses the default `sinfo -N -h` columns: NODELIST NODES
// PARTITION STATE. A node listed in several partitions is kept once.
func ParseNodes(out string) []NodeRecord {
	nodes := []NodeRecord{}
	seen := map[string]bool{}
	scanner := bufio.NewScanner(strings.NewReader(out))
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 4 {
			continue
		}
		if _, err := strconv.Atoi(fields[1]); err != nil {
			continue
		}
		if seen[fields[0]] {
			continue
		}
		seen[fields[0]] = true
		nodes = append(nodes, NodeRecord{
			Name:      fields[0],
			Partition: strings.TrimSuffix(fields[2], "*"),
			State:     strings.TrimRight(fields[3], "*~#!%$@^-"),
		})
	}
	return nodes
}

// SrunCommand runs command on a node with gpus GPUs allocated.
func SrunCommand(partition, node string, gpus int, command string) string {
	args := []string{"srun"}
	if partition != "" {
		args = append(args, "--partition="+partition)
	}
	if node != "" {
		args = append(args, "--nodelist="+node)
	}
	if gpus > 0 {
		args = append(args, "--gres=gpu:"+strconv.Itoa(gpus))
	}
	args = append(args, "bash", "-lc", command)
	return shellquote.Join(args...)
}

// JobOutputPath is where the batch script of a job writes its stdout.
func JobOutputPath(workDir, name, jobID string) string {
	file := fmt.Sprintf("%s_%s.out", name, jobID)
	if workDir == "" {
		return file
	}
	return strings.TrimSuffix(workDir, "/") + "/" + file
}

func JobLogCommand(path string, lines int) string {
	if lines <= 0 {
		lines = 100
	}
	return shellquote.Join("tail", "-n", strconv.Itoa(lines), path)
}
