// Package vcsgit is the one place Harbour talks to the system git
// binary. Every operation funnels through a single runner that pins the
// working directory per command (never process-wide chdir) and wraps
// failures uniformly with the command line, directory, and captured
// output, so callers see one error shape regardless of which git verb
// failed.
package vcsgit

import (
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// RunCommand executes an arbitrary command in dir, returning combined
// output with surrounding whitespace trimmed. Used directly for non-git
// subprocesses (compiler probes) that want the same capture-and-trim
// behavior.
func RunCommand(dir string, args ...string) (string, error) {
	if len(args) == 0 {
		return "", fmt.Errorf("vcsgit: no command arguments provided")
	}
	cmd := exec.Command(args[0], args[1:]...)
	cmd.Dir = dir
	output, err := cmd.CombinedOutput()
	out := strings.TrimSpace(string(output))
	if err != nil {
		return out, fmt.Errorf("failed to run '%s' in %s: %w\nOutput: %s", strings.Join(args, " "), dir, err, out)
	}
	return out, nil
}

// git runs one git subcommand in dir. All contextual wrapping lives
// here; the per-operation functions below stay thin.
func git(dir string, args ...string) (string, error) {
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	output, err := cmd.CombinedOutput()
	out := strings.TrimSpace(string(output))
	if err != nil {
		where := dir
		if where == "" {
			where = "."
		}
		return out, fmt.Errorf("git %s (in %s): %w\n%s", strings.Join(args, " "), where, err, out)
	}
	return out, nil
}

func wrapErr(dir, msg string, err error) error {
	return fmt.Errorf("%s in %s: %w", msg, dir, err)
}

// Clone clones gitURL into destination.
func Clone(gitURL, destination string) error {
	_, err := git("", "clone", gitURL, destination)
	return err
}

// FetchOrigin fetches updates from origin in dir.
func FetchOrigin(dir string) error {
	_, err := git(dir, "fetch", "origin")
	return err
}

// CurrentBranch returns the checked-out branch name in dir. A detached
// HEAD is an error, since every caller is about to push or pull a
// branch.
func CurrentBranch(dir string) (string, error) {
	branch, err := git(dir, "symbolic-ref", "--short", "HEAD")
	if err != nil {
		return "", wrapErr(dir, "not on a branch", err)
	}
	return branch, nil
}

// PushToRemote pushes target (a branch or tag) to origin. An
// already-up-to-date remote exits zero and is simply a success.
func PushToRemote(dir, target string) error {
	_, err := git(dir, "push", "origin", target)
	return err
}

// CheckoutRef fetches then checks out ref (a commit SHA, tag, or
// branch) in dir.
func CheckoutRef(dir, ref string) error {
	if err := FetchOrigin(dir); err != nil {
		return err
	}
	_, err := git(dir, "checkout", ref)
	return err
}

// RevParse resolves ref to a full commit SHA in dir.
func RevParse(dir, ref string) (string, error) {
	return git(dir, "rev-parse", ref)
}

// PullBranch runs `git pull origin <branch>` in dir.
func PullBranch(dir, branch string) error {
	_, err := git(dir, "pull", "origin", branch)
	return err
}

// HasUncommittedChanges reports whether dir's working tree is dirty.
func HasUncommittedChanges(dir string) (bool, error) {
	status, err := git(dir, "status", "--porcelain")
	if err != nil {
		return false, err
	}
	return status != "", nil
}

// BehindOrigin reports how many commits dir's HEAD is behind
// origin/branch, after fetching.
func BehindOrigin(dir, branch string) (int, error) {
	if err := FetchOrigin(dir); err != nil {
		return 0, err
	}
	count, err := git(dir, "rev-list", "--count", "HEAD..origin/"+branch)
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(count)
	if err != nil {
		return 0, wrapErr(dir, "failed to parse behind count", err)
	}
	return n, nil
}

// StageFiles stages paths via `git add`.
func StageFiles(dir string, paths ...string) error {
	if len(paths) == 0 {
		return fmt.Errorf("vcsgit: no paths provided to stage in %s", dir)
	}
	_, err := git(dir, append([]string{"add"}, paths...)...)
	return err
}

// Commit commits staged changes with message. A clean tree is a no-op
// rather than an error, so callers can commit unconditionally after
// idempotent writes.
func Commit(dir, message string) error {
	dirty, err := HasUncommittedChanges(dir)
	if err != nil {
		return err
	}
	if !dirty {
		return nil
	}
	_, err = git(dir, "commit", "-m", message)
	return err
}

// Tag creates a lightweight tag named version.
func Tag(dir, version string) error {
	_, err := git(dir, "tag", version)
	return err
}

// ListTags lists all tags in dir.
func ListTags(dir string) ([]string, error) {
	output, err := git(dir, "tag", "--list")
	if err != nil {
		return nil, err
	}
	if output == "" {
		return nil, nil
	}
	return strings.Split(output, "\n"), nil
}
