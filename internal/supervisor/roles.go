package supervisor

import (
	"os"
	"os/exec"
	"strconv"

	"github.com/mufanc/fpatch/internal/appinfo"
)

// fuseServerCommand builds the re-entry command for the FuseServer role,
// re-executing the running (SUID) binary via /proc/self/exe rather than
// trusting argv[0] or $PATH.
func fuseServerCommand() *exec.Cmd {
	cmd := exec.Command(appinfo.SelfExe, appinfo.RoleMountFuse)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd
}

// publisherCommand builds the re-entry command for the Publisher role,
// passing the FuseServer's pid as its single positional argument.
func publisherCommand(fusePID int) *exec.Cmd {
	cmd := exec.Command(appinfo.SelfExe, appinfo.RolePipeBack, strconv.Itoa(fusePID))
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd
}
