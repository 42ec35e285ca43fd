package tools

import "github.com/mark3labs/mcp-go/mcp"

// Tool definitions. Names, required fields, and defaults follow the
// request shapes documented in the README.

func connectTool() mcp.Tool {
	return mcp.NewTool("ssh_connect",
		mcp.WithDescription("Open a named SSH connection to a remote host"),
		mcp.WithString("host",
			mcp.Required(),
			mcp.Description("Hostname or IP address (bare IPv6 literals are accepted)"),
		),
		mcp.WithString("username",
			mcp.Required(),
			mcp.Description("SSH username"),
		),
		mcp.WithNumber("port",
			mcp.Description("SSH port (default: 22)"),
		),
		mcp.WithString("password",
			mcp.Description("Password (leave empty when using key-based auth)"),
		),
		mcp.WithString("privateKey",
			mcp.Description("Path to a private key file (preferred over password when both are given)"),
		),
		mcp.WithString("passphrase",
			mcp.Description("Passphrase for an encrypted private key"),
		),
		mcp.WithString("connectionId",
			mcp.Description("Name for this connection (default: \"default\")"),
		),
	)
}

func executeTool() mcp.Tool {
	return mcp.NewTool("ssh_execute",
		mcp.WithDescription("Execute a command on an open connection and return its aggregated output"),
		mcp.WithString("command",
			mcp.Required(),
			mcp.Description("The command to execute"),
		),
		mcp.WithString("connectionId",
			mcp.Description("Connection to use (default: \"default\")"),
		),
		mcp.WithNumber("timeout",
			mcp.Description("Timeout in milliseconds (default: 30000)"),
		),
	)
}

func disconnectTool() mcp.Tool {
	return mcp.NewTool("ssh_disconnect",
		mcp.WithDescription("Close a named SSH connection"),
		mcp.WithString("connectionId",
			mcp.Description("Connection to close (default: \"default\")"),
		),
	)
}

func listConnectionsTool() mcp.Tool {
	return mcp.NewTool("ssh_list_connections",
		mcp.WithDescription("List the ids of all open SSH connections"),
	)
}

func executeScriptTool() mcp.Tool {
	return mcp.NewTool("ssh_execute_script",
		mcp.WithDescription("Stage a script on the remote host, run it, and clean it up"),
		mcp.WithString("script",
			mcp.Required(),
			mcp.Description("Script body; a fenced code block is unwrapped automatically"),
		),
		mcp.WithString("interpreter",
			mcp.Description("Interpreter for the shebang when the script has none (default: bash)"),
		),
		mcp.WithString("connectionId",
			mcp.Description("Connection to use (default: \"default\")"),
		),
		mcp.WithNumber("timeout",
			mcp.Description("Timeout in milliseconds covering staging and execution (default: 60000)"),
		),
		mcp.WithString("workingDir",
			mcp.Description("Directory to cd into before running the script"),
		),
	)
}

func uploadAndExecuteTool() mcp.Tool {
	return mcp.NewTool("ssh_upload_and_execute",
		mcp.WithDescription("Upload a script under a chosen name, run it, and optionally keep it"),
		mcp.WithString("script",
			mcp.Required(),
			mcp.Description("Script body; a fenced code block is unwrapped automatically"),
		),
		mcp.WithString("filename",
			mcp.Description("Remote file name, base name only (default: mcp_script.sh)"),
		),
		mcp.WithString("interpreter",
			mcp.Description("Interpreter for the shebang when the script has none (default: bash)"),
		),
		mcp.WithString("connectionId",
			mcp.Description("Connection to use (default: \"default\")"),
		),
		mcp.WithBoolean("cleanup",
			mcp.Description("Remove the script after execution (default: true)"),
		),
		mcp.WithNumber("timeout",
			mcp.Description("Timeout in milliseconds covering staging and execution (default: 60000)"),
		),
	)
}

func uploadFileTool() mcp.Tool {
	return mcp.NewTool("ssh_upload_file",
		mcp.WithDescription("Upload a local file to the remote host"),
		mcp.WithString("localPath",
			mcp.Required(),
			mcp.Description("Local source path"),
		),
		mcp.WithString("remotePath",
			mcp.Required(),
			mcp.Description("Remote destination path"),
		),
		mcp.WithString("connectionId",
			mcp.Description("Connection to use (default: \"default\")"),
		),
		mcp.WithBoolean("createDirs",
			mcp.Description("Create missing remote parent directories (default: true)"),
		),
	)
}

func downloadFileTool() mcp.Tool {
	return mcp.NewTool("ssh_download_file",
		mcp.WithDescription("Download a remote file to the local filesystem"),
		mcp.WithString("remotePath",
			mcp.Required(),
			mcp.Description("Remote source path"),
		),
		mcp.WithString("localPath",
			mcp.Required(),
			mcp.Description("Local destination path"),
		),
		mcp.WithString("connectionId",
			mcp.Description("Connection to use (default: \"default\")"),
		),
		mcp.WithBoolean("createDirs",
			mcp.Description("Create missing local parent directories (default: true)"),
		),
	)
}

func listFilesTool() mcp.Tool {
	return mcp.NewTool("ssh_list_files",
		mcp.WithDescription("List entries under a remote directory"),
		mcp.WithString("remotePath",
			mcp.Description("Remote directory (default: \".\")"),
		),
		mcp.WithString("connectionId",
			mcp.Description("Connection to use (default: \"default\")"),
		),
		mcp.WithBoolean("detailed",
			mcp.Description("Include permissions, size, and modification time (default: false)"),
		),
	)
}
