package container

// BaselineEnv is appended after the caller's env on every run.
var BaselineEnv = []EnvVar{
	{Key: "NVIDIA_DRIVER_CAPABILITIES", Value: "all"},
	{Key: "NVIDIA_VISIBLE_DEVICES", Value: "all"},
	{Key: "HOUDINI_OCL_DEVICETYPE", Value: "CPU"},
	{Key: "SDL_VIDEODRIVER", Value: "dummy"},
	{Key: "DISPLAY", Value: ":99"},
	{Key: "HOUDINI_VULKAN_VIEWER", Value: "0"},
	{Key: "XDG_RUNTIME_DIR", Value: "/run/user/1000"},
}

// Builder assembles the docker CLI arguments for an invocation.
type Builder struct {
	Platform Platform
}

// Args returns the arguments following the docker binary.
func (b Builder) Args(inv Invocation) []string {
	args := []string{
		"run", "--rm",
		"--name", inv.Name,
		"--gpus", "all",
		"--ipc", "host",
		"--runtime=nvidia",
	}
	if inv.Entrypoint != "" {
		args = append(args, "--entrypoint", inv.Entrypoint)
	}

	for _, m := range inv.Mounts {
		args = append(args, "-v", m.flag())
	}
	for _, m := range b.Platform.Mounts {
		args = append(args, "-v", m.flag())
	}

	args = append(args, inv.ExtraArgs...)

	for _, e := range inv.Env {
		args = append(args, "-e", e.Key+"="+e.Value)
	}
	for _, e := range BaselineEnv {
		args = append(args, "-e", e.Key+"="+e.Value)
	}

	args = append(args, inv.Image)
	if inv.Script != "" {
		args = append(args, inv.Script)
	}
	return append(args, inv.Args...)
}
